package api

import "encoding/json"

// RunAgentRequest is the body of POST /api/agent/run.
type RunAgentRequest struct {
	// Messages is the conversation so far, relayed to the agent verbatim.
	Messages []json.RawMessage `json:"messages"`
}

// StatementRequest is the body of POST /api/statements.
type StatementRequest struct {
	Statement string `json:"statement"`
}

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
