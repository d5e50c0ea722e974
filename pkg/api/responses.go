package api

import "github.com/codeready-toolchain/agentrelay/pkg/auth"

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status            string `json:"status"`
	Version           string `json:"version"`
	ActiveConnections int    `json:"active_connections"`
}

// OKResponse acknowledges login and logout.
type OKResponse struct {
	OK bool `json:"ok"`
}

// JWTResponse is returned by GET /api/jwt.
type JWTResponse struct {
	Token *auth.Token `json:"token"`
}
