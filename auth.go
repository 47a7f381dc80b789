package tessera

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// refreshFunc performs the remote refresh call and returns the replacement
// credential pair. The call it issues must never re-enter the refresh path.
type refreshFunc func(ctx context.Context, refreshToken string) (*Credentials, error)

// refreshCall is the in-flight refresh marker. The goroutine that created it
// owns the refresh; everyone else waits on done and reads the shared outcome.
// The marker itself is the mutual exclusion: at most one exists at a time.
type refreshCall struct {
	done  chan struct{}
	creds *Credentials
	err   error
}

// authenticator coordinates credential access and single-flight refresh for
// one Client. All credential mutation funnels through it.
type authenticator struct {
	store   CredentialStore
	events  EventSink
	logger  Logger
	debug   *DebugConfig
	metrics *MetricsCollector
	refresh refreshFunc

	mu       sync.Mutex
	inflight *refreshCall
}

// bearerToken returns the current access token, or "" when none is usable.
// Lookup is best effort: a store failure never blocks the request, it just
// dispatches unauthenticated and lets the server's 401 drive recovery.
func (a *authenticator) bearerToken(ctx context.Context) string {
	creds, err := a.store.Load(ctx)
	if err != nil {
		if a.logger != nil {
			a.logger.Warn("credential store unavailable, dispatching without token", "error", err.Error())
		}
		return ""
	}
	if !creds.AccessValid(time.Now()) {
		return ""
	}
	return creds.AccessToken
}

// refreshCredentials runs (or joins) a refresh cycle and returns the new
// pair. Concurrent callers that arrive while a refresh is in flight wait on
// the existing call and observe the same outcome; exactly one remote refresh
// is issued per cycle.
func (a *authenticator) refreshCredentials(ctx context.Context) (*Credentials, error) {
	a.mu.Lock()
	if call := a.inflight; call != nil {
		a.mu.Unlock()
		select {
		case <-call.done:
			return call.creds, call.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	call := &refreshCall{done: make(chan struct{})}
	a.inflight = call
	a.mu.Unlock()

	call.creds, call.err = a.doRefresh(ctx)

	// Release the marker before waking waiters so a later 401 starts a
	// fresh cycle instead of observing this finished one.
	a.mu.Lock()
	a.inflight = nil
	a.mu.Unlock()
	close(call.done)

	return call.creds, call.err
}

// doRefresh executes one refresh cycle end to end. Failure paths clear the
// credential pair and broadcast auth-required exactly once for the whole
// cycle, no matter how many requests are waiting on it.
func (a *authenticator) doRefresh(ctx context.Context) (*Credentials, error) {
	creds, err := a.store.Load(ctx)
	if err != nil {
		return nil, a.failCycle(ctx, RefreshOutcomeFailure, "credential store unavailable", err)
	}
	if creds == nil || creds.RefreshToken == "" {
		return nil, a.failCycle(ctx, RefreshOutcomeFailure, "no refresh token", nil)
	}
	if creds.RefreshExpired(time.Now()) {
		// Known-expired refresh token: the remote endpoint is not called.
		return nil, a.failCycle(ctx, RefreshOutcomeExpired, "session expired", nil)
	}

	if a.debug != nil && a.debug.Enabled && a.debug.LogRefresh && a.logger != nil {
		a.logger.Debug("Refreshing access token")
	}

	next, err := a.refresh(ctx, creds.RefreshToken)
	if err != nil {
		return nil, a.failCycle(ctx, RefreshOutcomeFailure, "token refresh rejected", err)
	}

	if err := a.store.Save(ctx, next); err != nil && a.logger != nil {
		// The new pair still works for this process; persistence failures
		// only cost the next restart a login.
		a.logger.Warn("failed to persist refreshed credentials", "error", err.Error())
	}
	if a.metrics != nil {
		a.metrics.RecordTokenRefresh(RefreshOutcomeSuccess)
	}
	return next, nil
}

// failCycle terminates a refresh cycle: clear the pair, broadcast once,
// return the normalized terminal error all waiters will share.
func (a *authenticator) failCycle(ctx context.Context, outcome, reason string, cause error) error {
	if err := a.store.Clear(ctx); err != nil && a.logger != nil {
		a.logger.Warn("failed to clear credentials", "error", err.Error())
	}
	if a.metrics != nil {
		a.metrics.RecordTokenRefresh(outcome)
		a.metrics.RecordAuthRequired()
	}
	if a.debug != nil && a.debug.Enabled && a.debug.LogRefresh && a.logger != nil {
		a.logger.Info("Auth required", "reason", reason)
	}
	a.events.AuthRequired(reason)

	wrapped := ErrAuthRequired
	if cause != nil {
		wrapped = fmt.Errorf("%w: %v", ErrAuthRequired, cause)
	}
	return &APIError{
		Message: "Your session has expired. Please sign in again.",
		Status:  401,
		Code:    "AUTH_REQUIRED",
		cause:   wrapped,
	}
}
