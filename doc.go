// Package tessera is the Go client SDK for the Tessera ticketing platform.
// Every outbound call goes through a resilient request pipeline:
//
//   - Bearer-token attachment from a pluggable credential store
//   - Single-flight token refresh on authentication failure (at most one
//     refresh in flight; concurrent callers share its outcome)
//   - Classified retries: exponential backoff + jitter for rate limiting,
//     linear backoff for network and server errors, no retry for client errors
//   - Normalization of every terminal failure into a single *APIError shape
//   - Prometheus metrics and lightweight structured debug logging
//
// Design goals:
//   - Small surface area: functional options configure everything
//   - Safe concurrent use of a single *Client instance
//   - No ambient globals: credential storage and auth-required broadcasts are
//     injected collaborators (CredentialStore, EventSink)
//
// Typical usage:
//
//	client := tessera.New(
//	    tessera.WithBaseURL("https://api.tessera.live"),
//	    tessera.WithRetryAttempts(3),
//	    tessera.WithEventSink(tessera.EventFuncs{
//	        OnAuthRequired: func(reason string) { redirectToLogin(reason) },
//	    }),
//	)
//	events, err := client.ListEvents(ctx, nil)
//
// Callers never see raw transport errors: failures carry a display-safe
// Message plus Status/Code/Field for programmatic branching.
package tessera
