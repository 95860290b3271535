// Package tokens defines the durable records the broker keeps per client
// and per (client, cache key), the store interfaces that own them, and the
// coordinator that refreshes access tokens against those records.
package tokens

import "time"

// SecurityTokenRecord holds the token material for one user/site pairing of
// a client, keyed by (client id, cache key).
//
// The record is created on the first successful context-token validation and
// mutated in place every time the user access token is refreshed: the access
// token and its expiry are overwritten, the refresh token is carried forward.
// Deletion and expiry policy belong to the store, never to the broker.
type SecurityTokenRecord struct {
	// ClientID is the client the tokens belong to
	ClientID string `json:"client_id"`

	// AppWebURL is the site the tokens grant access to
	AppWebURL string `json:"app_web_url"`

	// HostName is the host authority of the tenancy, used to reach host
	// sites for hybrid installations
	HostName string `json:"host_name,omitempty"`

	// Realm is the tenant realm GUID
	Realm string `json:"realm"`

	// RefreshToken is the long-lived material exchanged for access tokens
	RefreshToken string `json:"refresh_token"`

	// AccessToken is the most recently minted user access token
	AccessToken string `json:"access_token"`

	// AccessTokenExpires is when AccessToken stops being valid.
	// Historically an unreliable indicator; treat as advisory.
	AccessTokenExpires time.Time `json:"access_token_expires"`
}

// Clone returns a deep copy of the record
func (r *SecurityTokenRecord) Clone() *SecurityTokenRecord {
	if r == nil {
		return nil
	}
	out := *r
	return &out
}

// ClientConfig is the durable per-client configuration. The broker only
// reads it; ownership stays with the external configuration store.
type ClientConfig struct {
	// ClientID must match the client id registered with the resource
	// provider
	ClientID string `json:"client_id"`

	// ClientSecret is the registered secret, base64 encoded. It doubles as
	// the symmetric trust material for context token validation.
	ClientSecret string `json:"client_secret"`

	// ProductID identifies the client's catalog product. May be empty;
	// an absent product id means "no app instance" rather than an error.
	ProductID string `json:"product_id,omitempty"`

	// ServiceBusConnectionString locates the client's notification queue
	ServiceBusConnectionString string `json:"service_bus_connection_string,omitempty"`

	// NotificationQueueName is the queue domain events are delivered to
	NotificationQueueName string `json:"notification_queue_name,omitempty"`

	// CredentialKey holds the secret material used to seal credential
	// tokens for this client
	CredentialKey *CredentialKeyConfig `json:"credential_key,omitempty"`
}

// CredentialKeyConfig is the password and salt a client uses to seal and
// open credential tokens
type CredentialKeyConfig struct {
	Password string `json:"password"`
	Salt     string `json:"salt"`
}
