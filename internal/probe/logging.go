// Package probe provides observer implementations that translate service
// telemetry into structured logs.
package probe

import (
	"context"
	"log/slog"
	"time"

	"github.com/iqcloud/acsbroker/internal/service"
)

// loggingObserver creates request-scoped logging probes
type loggingObserver struct {
	logger *slog.Logger
}

// LoggingObserverConfig configures the logging observer
type LoggingObserverConfig struct {
	// Logger is the base logger to use. If nil, uses slog.Default()
	Logger *slog.Logger
}

// NewLoggingObserver creates an observer that logs all observability events
// using structured logging with slog.
func NewLoggingObserver(logger *slog.Logger) service.Observer {
	return NewLoggingObserverWithConfig(LoggingObserverConfig{
		Logger: logger,
	})
}

// NewLoggingObserverWithConfig creates a logging observer with custom configuration
func NewLoggingObserverWithConfig(cfg LoggingObserverConfig) service.Observer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &loggingObserver{
		logger: logger,
	}
}

func (o *loggingObserver) ContextAcquisitionStarted(
	ctx context.Context,
	clientID, cacheKey string,
	appOnly, fallbackToUser bool,
) (context.Context, service.AcquisitionProbe) {
	// Create scoped logger for this probe type
	probeLogger := o.logger.With("event", "context_acquisition")

	probeLogger.LogAttrs(ctx, slog.LevelDebug,
		"Starting context acquisition",
		slog.String("client_id", clientID),
		slog.String("cache_key", cacheKey),
		slog.Bool("app_only", appOnly),
		slog.Bool("fallback_to_user", fallbackToUser),
	)

	// Return a request-scoped probe that captures the context
	return ctx, &loggingAcquisitionProbe{
		ctx:      ctx,
		logger:   probeLogger,
		clientID: clientID,
	}
}

// loggingAcquisitionProbe is a request-scoped probe that logs events for a
// single context acquisition
type loggingAcquisitionProbe struct {
	service.NoOpAcquisitionProbe
	ctx      context.Context
	logger   *slog.Logger
	clientID string
}

func (p *loggingAcquisitionProbe) RecordMissing() {
	p.logger.LogAttrs(p.ctx, slog.LevelDebug,
		"No configuration or token record for client",
		slog.String("client_id", p.clientID),
	)
}

func (p *loggingAcquisitionProbe) UserTokenRefreshed(expiresOn time.Time) {
	p.logger.LogAttrs(p.ctx, slog.LevelDebug,
		"User access token refreshed",
		slog.Time("expires_on", expiresOn),
	)
}

func (p *loggingAcquisitionProbe) UserAccessDenied() {
	p.logger.LogAttrs(p.ctx, slog.LevelWarn,
		"Site denied access to the user context",
		slog.String("client_id", p.clientID),
	)
}

func (p *loggingAcquisitionProbe) AppOnlyTokenIssued() {
	p.logger.LogAttrs(p.ctx, slog.LevelDebug, "App-only access token issued")
}

func (p *loggingAcquisitionProbe) AppOnlyAccessDenied(fellBack bool) {
	p.logger.LogAttrs(p.ctx, slog.LevelWarn,
		"Site denied access to the app-only context",
		slog.String("client_id", p.clientID),
		slog.Bool("fell_back_to_user", fellBack),
	)
}

func (p *loggingAcquisitionProbe) Failed(err error) {
	p.logger.LogAttrs(p.ctx, slog.LevelError,
		"Context acquisition failed",
		slog.String("error", err.Error()),
	)
}

func (p *loggingAcquisitionProbe) End() {
	p.logger.LogAttrs(p.ctx, slog.LevelDebug, "Context acquisition completed")
}

// LaunchStarted implements service.Observer
func (o *loggingObserver) LaunchStarted(
	ctx context.Context,
	clientID, requestAuthority string,
) (context.Context, service.LaunchProbe) {
	// Create scoped logger for this probe type
	probeLogger := o.logger.With("event", "app_launch")

	probeLogger.LogAttrs(ctx, slog.LevelDebug,
		"Starting app launch",
		slog.String("client_id", clientID),
		slog.String("request_authority", requestAuthority),
	)

	return ctx, &loggingLaunchProbe{
		ctx:    ctx,
		logger: probeLogger,
	}
}

// loggingLaunchProbe is a request-scoped probe that logs launch events
type loggingLaunchProbe struct {
	service.NoOpLaunchProbe
	ctx    context.Context
	logger *slog.Logger
}

func (p *loggingLaunchProbe) TokenValidated(realm, cacheKey string) {
	p.logger.LogAttrs(p.ctx, slog.LevelDebug,
		"Context token validated",
		slog.String("realm", realm),
		slog.String("cache_key", cacheKey),
	)
}

func (p *loggingLaunchProbe) TokensStored(cacheKey string) {
	p.logger.LogAttrs(p.ctx, slog.LevelDebug,
		"Token record stored",
		slog.String("cache_key", cacheKey),
	)
}

func (p *loggingLaunchProbe) EventEnqueued(queue string) {
	p.logger.LogAttrs(p.ctx, slog.LevelDebug,
		"Launch event enqueued",
		slog.String("queue", queue),
	)
}

func (p *loggingLaunchProbe) Failed(err error) {
	p.logger.LogAttrs(p.ctx, slog.LevelError,
		"App launch failed",
		slog.String("error", err.Error()),
	)
}

func (p *loggingLaunchProbe) End() {
	p.logger.LogAttrs(p.ctx, slog.LevelDebug, "App launch completed")
}
