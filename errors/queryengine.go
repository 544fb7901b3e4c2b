package errors

import "net/http"

// Query engine error codes. User errors are rejected before execution;
// transient execution errors are recovered locally where an HA or
// partial-shard merger exists above the failing node; fatal errors cancel
// the whole pipeline.
const (
	// ErrCodeParseError indicates the declarative query body failed to parse
	// or referenced an unknown field.
	ErrCodeParseError ErrorCode = "PARSE_ERROR"
	// ErrCodePlanCycle indicates the planner detected a cycle while
	// composing expression nodes.
	ErrCodePlanCycle ErrorCode = "PLAN_CYCLE"
	// ErrCodeUnknownSource indicates a metric has no resolvable data source
	// in the plugin registry.
	ErrCodeUnknownSource ErrorCode = "UNKNOWN_SOURCE"
	// ErrCodeUnknownType indicates a value type token has no registry entry.
	ErrCodeUnknownType ErrorCode = "UNKNOWN_TYPE"
	// ErrCodeSourceTimeout indicates a DataSource fetch exceeded its deadline.
	ErrCodeSourceTimeout ErrorCode = "SOURCE_TIMEOUT"
	// ErrCodeSourceFailed indicates a DataSource fetch failed for a reason
	// other than timeout.
	ErrCodeSourceFailed ErrorCode = "SOURCE_FAILED"
	// ErrCodePartialResult indicates the pipeline completed having recovered
	// one or more source failures; warnings are attached to the result.
	ErrCodePartialResult ErrorCode = "PARTIAL_RESULT"
	// ErrCodeCancelled indicates the pipeline was cancelled, including by a
	// deadline-triggered timeout.
	ErrCodeCancelled ErrorCode = "CANCELLED"
	// ErrCodeOutOfMemory indicates a fatal resource exhaustion during execution.
	ErrCodeOutOfMemory ErrorCode = "OUT_OF_MEMORY"
	// ErrCodeInternalQE indicates an assertion violation or unexpected
	// internal state in the query engine, distinct from the generic
	// ErrCodeInternal used elsewhere in this package.
	ErrCodeInternalQE ErrorCode = "INTERNAL"
)

func init() {
	retryableCodes[ErrCodeParseError] = false
	retryableCodes[ErrCodePlanCycle] = false
	retryableCodes[ErrCodeUnknownSource] = false
	retryableCodes[ErrCodeUnknownType] = false
	retryableCodes[ErrCodeSourceTimeout] = true
	retryableCodes[ErrCodeSourceFailed] = true
	retryableCodes[ErrCodePartialResult] = false
	retryableCodes[ErrCodeCancelled] = false
	retryableCodes[ErrCodeOutOfMemory] = false
	retryableCodes[ErrCodeInternalQE] = false
}

// ParseError creates a user error for a malformed declarative query.
func ParseError(reason string) *AppError {
	return &AppError{
		Code: ErrCodeParseError, Message: "failed to parse query: " + reason,
		HTTPStatus: http.StatusBadRequest, Retryable: false,
	}
}

// PlanCycleError creates a user error naming the node ids that form a cycle.
func PlanCycleError(cycle []string) *AppError {
	return &AppError{
		Code: ErrCodePlanCycle, Message: "query plan contains a cycle",
		HTTPStatus: http.StatusBadRequest, Retryable: false,
		Details: map[string]any{"cycle": cycle},
	}
}

// UnknownSourceError creates a user error for a metric with no resolvable
// data source.
func UnknownSourceError(metric string) *AppError {
	return &AppError{
		Code: ErrCodeUnknownSource, Message: "no data source resolves metric " + metric,
		HTTPStatus: http.StatusBadRequest, Retryable: false,
		Details: map[string]any{"metric": metric},
	}
}

// UnknownTypeError creates a user error for an unregistered value type token.
func UnknownTypeError(token int) *AppError {
	return &AppError{
		Code: ErrCodeUnknownType, Message: "unregistered value type token",
		HTTPStatus: http.StatusBadRequest, Retryable: false,
		Details: map[string]any{"token": token},
	}
}

// SourceTimeoutError creates a transient error for a DataSource fetch that
// exceeded its deadline.
func SourceTimeoutError(source string) *AppError {
	return &AppError{
		Code: ErrCodeSourceTimeout, Message: "data source timed out: " + source,
		HTTPStatus: http.StatusGatewayTimeout, Retryable: true,
		Details: map[string]any{"source": source},
	}
}

// SourceFailedError creates a transient error for a DataSource fetch
// failure, wrapping the underlying cause.
func SourceFailedError(source string, cause error) *AppError {
	return (&AppError{
		Code: ErrCodeSourceFailed, Message: "data source failed: " + source,
		HTTPStatus: http.StatusBadGateway, Retryable: true,
		Details: map[string]any{"source": source},
	}).WithCause(cause)
}

// CancelledError creates an error for a pipeline cancelled before completion.
func CancelledError(cause string) *AppError {
	return &AppError{
		Code: ErrCodeCancelled, Message: "query cancelled: " + cause,
		HTTPStatus: http.StatusRequestTimeout, Retryable: false,
	}
}

// InternalQueryEngineError creates a fatal error for an unexpected internal
// condition, cancelling the whole pipeline with no partial result delivered.
func InternalQueryEngineError(cause error) *AppError {
	return (&AppError{
		Code: ErrCodeInternalQE, Message: "internal query engine error",
		HTTPStatus: http.StatusInternalServerError, Retryable: false,
	}).WithCause(cause)
}
