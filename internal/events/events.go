// Package events defines the domain events the broker emits toward client
// notification queues and the enqueue collaborator that delivers them.
// Actual queue transport is external; the broker only hands records to an
// Enqueuer.
package events

import (
	"context"
	"time"
)

// DefaultLaunchDelay postpones delivery of launch-time events. The resource
// provider may still be processing synchronous events when the launch event
// is emitted; delivering immediately lets handlers observe stale item state.
const DefaultLaunchDelay = 15 * time.Second

// DefaultRetryCount is the redelivery budget attached to emitted events
const DefaultRetryCount = 5

// Event is a domain event deliverable to a client queue
type Event interface {
	// Kind identifies the event type on the wire
	Kind() string
}

// Enqueuer delivers events to a named queue after an optional delay.
// A zero delay means deliver as soon as possible.
type Enqueuer interface {
	Enqueue(ctx context.Context, event Event, queue string, delay time.Duration) error
}

// LaunchEvent notifies a client that its app was launched on a site
type LaunchEvent struct {
	ClientID        string `json:"client_id"`
	AppWebURL       string `json:"app_web_url"`
	UserAccessToken string `json:"user_access_token"`
	AppAccessToken  string `json:"app_access_token,omitempty"`
	RetryCount      int    `json:"retry_count"`
}

// Kind implements Event
func (e *LaunchEvent) Kind() string { return "app_launch" }

// ProvisioningAction is the requested provisioning operation
type ProvisioningAction string

// Provisioning actions
const (
	ProvisioningActionInstall   ProvisioningAction = "install"
	ProvisioningActionUpdate    ProvisioningAction = "update"
	ProvisioningActionUninstall ProvisioningAction = "uninstall"
)

// ProvisioningStep tracks how far a provisioning run has progressed
type ProvisioningStep string

// Provisioning steps
const (
	ProvisioningStepNotStarted ProvisioningStep = "not_started"
	ProvisioningStepInProgress ProvisioningStep = "in_progress"
	ProvisioningStepComplete   ProvisioningStep = "complete"
)

// ProvisioningEvent asks the client's provisioning worker to run
type ProvisioningEvent struct {
	ClientID        string             `json:"client_id"`
	AppWebURL       string             `json:"app_web_url"`
	UserAccessToken string             `json:"user_access_token"`
	AppAccessToken  string             `json:"app_access_token,omitempty"`
	RetryCount      int                `json:"retry_count"`
	Action          ProvisioningAction `json:"action"`
	Step            ProvisioningStep   `json:"step"`
}

// Kind implements Event
func (e *ProvisioningEvent) Kind() string { return "provisioning" }

// ProcessEvent forwards a normalized remote site event to the client
type ProcessEvent struct {
	ClientID   string `json:"client_id"`
	AppWebURL  string `json:"app_web_url"`
	EventName  string `json:"event_name"`
	RetryCount int    `json:"retry_count"`
}

// Kind implements Event
func (e *ProcessEvent) Kind() string { return "process" }
