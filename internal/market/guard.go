package market

import "context"

// callMarkerKey tags contexts handed to call-outs.
type callMarkerKey struct{}

// outboundContext marks ctx as belonging to an in-flight engine operation.
// Every call-out (asset transfer, value transfer, receiver hook) receives a
// marked context; a callee that calls back into the engine with it, or with
// any context derived from it, is rejected at the entry point.
func outboundContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, callMarkerKey{}, struct{}{})
}

// reentrant reports whether ctx carries the engine's call marker.
func reentrant(ctx context.Context) bool {
	return ctx.Value(callMarkerKey{}) != nil
}
