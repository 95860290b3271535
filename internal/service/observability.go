package service

import (
	"context"
	"time"
)

// Observer creates request-scoped probes for the broker's two entry points.
// Implementations translate probe calls into logs or metrics; the service
// itself stays free of logging concerns.
type Observer interface {
	// ContextAcquisitionStarted begins observing one AcquireContext or
	// AcquireAccessToken call
	ContextAcquisitionStarted(ctx context.Context, clientID, cacheKey string, appOnly, fallbackToUser bool) (context.Context, AcquisitionProbe)

	// LaunchStarted begins observing one launch flow
	LaunchStarted(ctx context.Context, clientID, requestAuthority string) (context.Context, LaunchProbe)
}

// AcquisitionProbe observes a single context acquisition
type AcquisitionProbe interface {
	// RecordMissing reports that no configuration or token record exists
	RecordMissing()

	// UserTokenRefreshed reports a successful user token refresh
	UserTokenRefreshed(expiresOn time.Time)

	// UserAccessDenied reports that the user context failed the access probe
	UserAccessDenied()

	// AppOnlyTokenIssued reports a successful app-only exchange
	AppOnlyTokenIssued()

	// AppOnlyAccessDenied reports that the app-only context failed the
	// access probe; fellBack tells whether the user context was returned
	// instead
	AppOnlyAccessDenied(fellBack bool)

	// Failed reports an unexpected error
	Failed(err error)

	// End marks the acquisition as finished
	End()
}

// LaunchProbe observes a single launch flow
type LaunchProbe interface {
	// TokenValidated reports a successfully validated context token
	TokenValidated(realm, cacheKey string)

	// TokensStored reports that the token record was persisted
	TokensStored(cacheKey string)

	// EventEnqueued reports that the launch event was handed to the queue
	EventEnqueued(queue string)

	// Failed reports an unexpected error
	Failed(err error)

	// End marks the launch as finished
	End()
}

// NoOpObserver is an Observer that observes nothing. Embed it to implement
// only the events you care about.
type NoOpObserver struct{}

// ContextAcquisitionStarted implements Observer
func (NoOpObserver) ContextAcquisitionStarted(ctx context.Context, _, _ string, _, _ bool) (context.Context, AcquisitionProbe) {
	return ctx, NoOpAcquisitionProbe{}
}

// LaunchStarted implements Observer
func (NoOpObserver) LaunchStarted(ctx context.Context, _, _ string) (context.Context, LaunchProbe) {
	return ctx, NoOpLaunchProbe{}
}

// NoOpAcquisitionProbe ignores all events
type NoOpAcquisitionProbe struct{}

func (NoOpAcquisitionProbe) RecordMissing()               {}
func (NoOpAcquisitionProbe) UserTokenRefreshed(time.Time) {}
func (NoOpAcquisitionProbe) UserAccessDenied()            {}
func (NoOpAcquisitionProbe) AppOnlyTokenIssued()          {}
func (NoOpAcquisitionProbe) AppOnlyAccessDenied(bool)     {}
func (NoOpAcquisitionProbe) Failed(error)                 {}
func (NoOpAcquisitionProbe) End()                         {}

// NoOpLaunchProbe ignores all events
type NoOpLaunchProbe struct{}

func (NoOpLaunchProbe) TokenValidated(string, string) {}
func (NoOpLaunchProbe) TokensStored(string)           {}
func (NoOpLaunchProbe) EventEnqueued(string)          {}
func (NoOpLaunchProbe) Failed(error)                  {}
func (NoOpLaunchProbe) End()                          {}
