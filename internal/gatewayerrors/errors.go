// Package gatewayerrors defines the sentinel error kinds used across the
// orchestrator, converter, store, and vector search packages.
// Errors are plain wrapped errors (fmt.Errorf("...: %w", err)); this package
// only supplies the sentinels callers compare against with errors.Is, plus
// the Kind classification used to map an error onto an HTTP status or an
// SSE error code at the internal/httpapi boundary.
package gatewayerrors

import "errors"

// Sentinel errors returned by orchestrator, convert, store, and vectorstore.
var (
	// ErrInvalidRequest marks malformed input, missing credential, or an
	// unsupported input/response variant. Surfaced as 4xx; never retried.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrToolLimitExceeded marks that the input's cumulative FunctionCall
	// count exceeds MAX_TOOL_CALLS.
	ErrToolLimitExceeded = errors.New("too many tool calls")

	// ErrTimeout marks a streaming deadline expiry.
	ErrTimeout = errors.New("timeout")

	// ErrUpstream marks a connection or protocol error from the provider.
	ErrUpstream = errors.New("upstream provider error")

	// ErrNotFound marks an unknown responseId/fileId/vectorStoreId.
	ErrNotFound = errors.New("not found")

	// ErrStorage marks a store write failure. Callers on optional
	// persistence paths log and swallow it rather than propagate.
	ErrStorage = errors.New("storage error")
)

// Kind classifies an error for the HTTP/SSE boundary. ToolExecutionError
// has no Kind: tool errors are recovered locally and embedded as tool
// output, never surfaced at the request boundary.
type Kind string

const (
	KindInvalidRequest   Kind = "invalid_request"
	KindToolLimitExceeded Kind = "too_many_tool_calls"
	KindTimeout           Kind = "timeout"
	KindUpstream          Kind = "server_error"
	KindNotFound          Kind = "not_found"
	KindStorage           Kind = "storage_error"
	KindUnknown           Kind = "server_error"
)

// Classify maps err onto the Kind whose sentinel it wraps.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidRequest):
		return KindInvalidRequest
	case errors.Is(err, ErrToolLimitExceeded):
		return KindToolLimitExceeded
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrUpstream):
		return KindUpstream
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrStorage):
		return KindStorage
	default:
		return KindUnknown
	}
}

// HTTPStatus returns the status code the httpapi layer should use for err.
func HTTPStatus(err error) int {
	switch Classify(err) {
	case KindInvalidRequest, KindToolLimitExceeded:
		return 400
	case KindNotFound:
		return 404
	case KindTimeout:
		return 504
	default:
		return 500
	}
}
