package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/codeready-toolchain/agentrelay/pkg/sse"
)

// RunResult is one complete agent run read over the event-stream route.
type RunResult struct {
	Response *http.Response
	Frames   []sse.Frame
}

// Names returns the event names in arrival order.
func (r *RunResult) Names() []string {
	names := make([]string, len(r.Frames))
	for i, f := range r.Frames {
		names[i] = f.Event
	}
	return names
}

// Data decodes the data of the first frame named event.
func (r *RunResult) Data(event string) map[string]any {
	for _, f := range r.Frames {
		if f.Event != event {
			continue
		}
		var v map[string]any
		if err := json.Unmarshal([]byte(f.Data), &v); err != nil {
			return nil
		}
		return v
	}
	return nil
}

// PostRun posts messages to /api/agent/run and reads the stream to its end.
func (app *TestApp) PostRun(ctx context.Context, messages []map[string]any, cookies ...*http.Cookie) (*RunResult, error) {
	body, err := json.Marshal(map[string]any{"messages": messages})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, app.BaseURL+"/api/agent/run", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &RunResult{Response: resp}, fmt.Errorf("agent run: HTTP %d", resp.StatusCode)
	}

	result := &RunResult{Response: resp}
	dec := sse.NewDecoder(resp.Body)
	for {
		frame, ok := dec.Next()
		if !ok {
			break
		}
		result.Frames = append(result.Frames, frame)
	}
	return result, dec.Err()
}

// Login posts demo credentials and returns the identity cookie.
func (app *TestApp) Login(username, password string) (*http.Cookie, error) {
	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(app.BaseURL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("login: HTTP %d", resp.StatusCode)
	}
	for _, c := range resp.Cookies() {
		if c.Name == app.Config.Auth.CookieName {
			return c, nil
		}
	}
	return nil, fmt.Errorf("login: no identity cookie")
}

// UserMessage builds a single-text user message.
func UserMessage(text string) map[string]any {
	return map[string]any{
		"role":    "user",
		"content": []any{map[string]any{"type": "text", "text": text}},
	}
}
