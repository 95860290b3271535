package service

import (
	"context"
	"time"
)

// CompositeObserver fans observability events out to multiple observers
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an observer that delegates to all given
// observers in order
func NewCompositeObserver(observers ...Observer) *CompositeObserver {
	return &CompositeObserver{observers: observers}
}

// ContextAcquisitionStarted implements Observer
func (c *CompositeObserver) ContextAcquisitionStarted(ctx context.Context, clientID, cacheKey string, appOnly, fallbackToUser bool) (context.Context, AcquisitionProbe) {
	probes := make([]AcquisitionProbe, 0, len(c.observers))
	for _, o := range c.observers {
		var probe AcquisitionProbe
		ctx, probe = o.ContextAcquisitionStarted(ctx, clientID, cacheKey, appOnly, fallbackToUser)
		probes = append(probes, probe)
	}
	return ctx, &compositeAcquisitionProbe{probes: probes}
}

// LaunchStarted implements Observer
func (c *CompositeObserver) LaunchStarted(ctx context.Context, clientID, requestAuthority string) (context.Context, LaunchProbe) {
	probes := make([]LaunchProbe, 0, len(c.observers))
	for _, o := range c.observers {
		var probe LaunchProbe
		ctx, probe = o.LaunchStarted(ctx, clientID, requestAuthority)
		probes = append(probes, probe)
	}
	return ctx, &compositeLaunchProbe{probes: probes}
}

type compositeAcquisitionProbe struct {
	probes []AcquisitionProbe
}

func (c *compositeAcquisitionProbe) RecordMissing() {
	for _, p := range c.probes {
		p.RecordMissing()
	}
}

func (c *compositeAcquisitionProbe) UserTokenRefreshed(expiresOn time.Time) {
	for _, p := range c.probes {
		p.UserTokenRefreshed(expiresOn)
	}
}

func (c *compositeAcquisitionProbe) UserAccessDenied() {
	for _, p := range c.probes {
		p.UserAccessDenied()
	}
}

func (c *compositeAcquisitionProbe) AppOnlyTokenIssued() {
	for _, p := range c.probes {
		p.AppOnlyTokenIssued()
	}
}

func (c *compositeAcquisitionProbe) AppOnlyAccessDenied(fellBack bool) {
	for _, p := range c.probes {
		p.AppOnlyAccessDenied(fellBack)
	}
}

func (c *compositeAcquisitionProbe) Failed(err error) {
	for _, p := range c.probes {
		p.Failed(err)
	}
}

func (c *compositeAcquisitionProbe) End() {
	for _, p := range c.probes {
		p.End()
	}
}

type compositeLaunchProbe struct {
	probes []LaunchProbe
}

func (c *compositeLaunchProbe) TokenValidated(realm, cacheKey string) {
	for _, p := range c.probes {
		p.TokenValidated(realm, cacheKey)
	}
}

func (c *compositeLaunchProbe) TokensStored(cacheKey string) {
	for _, p := range c.probes {
		p.TokensStored(cacheKey)
	}
}

func (c *compositeLaunchProbe) EventEnqueued(queue string) {
	for _, p := range c.probes {
		p.EventEnqueued(queue)
	}
}

func (c *compositeLaunchProbe) Failed(err error) {
	for _, p := range c.probes {
		p.Failed(err)
	}
}

func (c *compositeLaunchProbe) End() {
	for _, p := range c.probes {
		p.End()
	}
}
