// Package principal implements the identity string format used by the
// security token service: "{name}/{host}@{realm}" or "{name}@{realm}".
//
// These strings appear as audiences, issuers and resource identifiers in the
// OAuth2 exchange. The format is protocol-mandated and must be reproduced
// byte for byte.
package principal

import "strings"

// Format builds a principal identifier for a name, an optional host
// authority and a realm.
func Format(name, host, realm string) string {
	if host != "" {
		return name + "/" + host + "@" + realm
	}
	return name + "@" + realm
}

// SplitTarget returns the principal name portion of an "appctxsender" style
// claim value, i.e. everything before the first '@'. Returns the input
// unchanged if it contains no '@'.
func SplitTarget(sender string) string {
	name, _, _ := strings.Cut(sender, "@")
	return name
}

// RealmOf extracts the realm portion of an audience string, i.e. everything
// after the first '@'. Returns "" if the audience contains no '@'.
func RealmOf(audience string) string {
	_, realm, _ := strings.Cut(audience, "@")
	return realm
}

// NameOf extracts the name portion of a principal, everything before the
// first '/' or '@', whichever comes first.
func NameOf(p string) string {
	name, _, _ := strings.Cut(p, "@")
	name, _, _ = strings.Cut(name, "/")
	return name
}
