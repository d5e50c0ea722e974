package snowflake

import (
	"errors"
	"fmt"
)

var (
	// ErrNoStatementHandle indicates a submit response carried no usable handle.
	ErrNoStatementHandle = errors.New("statement response has no statement handle")

	// ErrStatementFailed indicates the backend reported the statement as failed.
	ErrStatementFailed = errors.New("statement execution failed")
)

// maxErrorBody caps how much of an upstream error body is kept.
const maxErrorBody = 4 << 10

// APIError is returned for a non-success upstream response.
type APIError struct {
	Op         string // e.g. "agent run", "submit statement"
	StatusCode int
	Body       string // masked, truncated response body
}

// Error returns formatted error message
func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: upstream returned HTTP %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: upstream returned HTTP %d: %s", e.Op, e.StatusCode, e.Body)
}
