package snowflake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// StatementRequest is the body of a statement submission.
type StatementRequest struct {
	Statement  string            `json:"statement"`
	Warehouse  string            `json:"warehouse,omitempty"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// SubmitResponse is the part of a submission response the relay needs.
// A multi-statement submission lists one handle per statement.
type SubmitResponse struct {
	StatementHandle  string   `json:"statementHandle"`
	StatementHandles []string `json:"statementHandles"`
}

// ResultHandle returns the handle whose result matters: the last one of a
// multi-statement submission, else the single handle.
func (r *SubmitResponse) ResultHandle() (string, error) {
	if n := len(r.StatementHandles); n > 0 && r.StatementHandles[n-1] != "" {
		return r.StatementHandles[n-1], nil
	}
	if r.StatementHandle != "" {
		return r.StatementHandle, nil
	}
	return "", ErrNoStatementHandle
}

// BatchResultHandle returns the last per-statement handle listed in the
// result document of a completed multi-statement batch. A batch accepted
// asynchronously only reports its own handle at submission; the
// per-statement handles appear once it has finished.
func BatchResultHandle(result map[string]any) (string, error) {
	handles, _ := result["statementHandles"].([]any)
	if n := len(handles); n > 0 {
		if h, ok := handles[n-1].(string); ok && h != "" {
			return h, nil
		}
	}
	return "", ErrNoStatementHandle
}

// StatementStatus is the outcome of one result fetch.
type StatementStatus struct {
	// Running is true while the backend still executes the statement (202).
	Running bool

	// Result is the decoded response document. Numbers keep their exact
	// textual form.
	Result map[string]any
}

// SubmitStatement submits statement holding count statements. Both 200 and
// 202 are accepted; the latter means the result must be polled.
func (c *Client) SubmitStatement(ctx context.Context, statement string, count int) (*SubmitResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.statements.Timeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodPost, statementsPath, c.statementRequest(statement, count), "application/json")
	if err != nil {
		return nil, fmt.Errorf("submit statement: %w", err)
	}
	defer resp.Body.Close()
	c.logger.Info("Statement submit response", "status", resp.StatusCode)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, c.apiError("submit statement", resp)
	}

	var out SubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode submit response: %w", err)
	}
	return &out, nil
}

// GetStatement fetches the status or result of the statement with handle.
// A 422 response means the statement failed and yields ErrStatementFailed.
func (c *Client) GetStatement(ctx context.Context, handle string) (*StatementStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, c.statements.Timeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, statementsPath+"/"+url.PathEscape(handle), nil, "application/json")
	if err != nil {
		return nil, fmt.Errorf("fetch statement %s: %w", handle, err)
	}
	defer resp.Body.Close()
	c.logger.Info("Statement fetch response", "handle", handle, "status", resp.StatusCode)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted:
	case http.StatusUnprocessableEntity:
		return nil, fmt.Errorf("%w: %w", ErrStatementFailed, c.apiError("fetch statement", resp))
	default:
		return nil, c.apiError("fetch statement", resp)
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var result map[string]any
	running := resp.StatusCode == http.StatusAccepted
	if err := dec.Decode(&result); err != nil && !(running && errors.Is(err, io.EOF)) {
		return nil, fmt.Errorf("decode statement %s: %w", handle, err)
	}

	return &StatementStatus{
		Running: running,
		Result:  result,
	}, nil
}

func (c *Client) statementRequest(statement string, count int) *StatementRequest {
	return &StatementRequest{
		Statement:  statement,
		Warehouse:  c.warehouse,
		Parameters: c.statements.ParametersFor(count),
	}
}
