package tessera

// EventSink receives the pipeline's broadcast signals. It is injected at
// construction rather than published on a global bus so multiple client
// instances can coexist and tests can observe broadcasts directly.
//
// AuthRequired fires exactly once per failed refresh cycle, not once per
// request waiting on that cycle. APIError fires once per terminal non-auth
// failure.
type EventSink interface {
	AuthRequired(reason string)
	APIError(err *APIError)
}

// EventFuncs adapts plain functions to EventSink. Nil fields are no-ops.
type EventFuncs struct {
	OnAuthRequired func(reason string)
	OnAPIError     func(err *APIError)
}

func (f EventFuncs) AuthRequired(reason string) {
	if f.OnAuthRequired != nil {
		f.OnAuthRequired(reason)
	}
}

func (f EventFuncs) APIError(err *APIError) {
	if f.OnAPIError != nil {
		f.OnAPIError(err)
	}
}

type nopSink struct{}

func (nopSink) AuthRequired(string) {}
func (nopSink) APIError(*APIError)  {}
