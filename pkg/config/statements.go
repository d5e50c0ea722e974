package config

import (
	"maps"
	"strconv"
	"time"
)

// StatementConfig contains statement submission and polling settings.
type StatementConfig struct {
	// Timeout caps each submit call and the whole fetch/poll sequence.
	Timeout time.Duration `yaml:"timeout"`

	// PollInterval is the wait between result fetches while the backend
	// still reports the statement as running.
	PollInterval time.Duration `yaml:"poll_interval"`

	// MaxPerSecond and Burst rate-limit statement submissions process-wide.
	MaxPerSecond float64 `yaml:"max_per_second"`
	Burst        int     `yaml:"burst"`

	// Parameters are sent with every submission. MULTI_STATEMENT_COUNT is
	// always overwritten per submission.
	Parameters map[string]string `yaml:"parameters"`
}

// MultiStatementCountParam declares how many statements a submission holds.
const MultiStatementCountParam = "MULTI_STATEMENT_COUNT"

// DefaultStatementConfig returns the built-in statement defaults.
func DefaultStatementConfig() *StatementConfig {
	return &StatementConfig{
		Timeout:      60 * time.Second,
		PollInterval: 500 * time.Millisecond,
		MaxPerSecond: 5,
		Burst:        5,
		Parameters: map[string]string{
			"BINARY_OUTPUT_FORMAT":        "HEX",
			"DATE_OUTPUT_FORMAT":          "YYYY-Mon-DD",
			"TIME_OUTPUT_FORMAT":          "HH24:MI:SS",
			"TIMESTAMP_LTZ_OUTPUT_FORMAT": "",
			"TIMESTAMP_NTZ_OUTPUT_FORMAT": "YYYY-MM-DD HH24:MI:SS.FF3",
			"TIMESTAMP_TZ_OUTPUT_FORMAT":  "",
			"TIMESTAMP_OUTPUT_FORMAT":     "YYYY-MM-DD HH24:MI:SS.FF3 TZHTZM",
			"TIMEZONE":                    "America/Los_Angeles",
		},
	}
}

// ParametersFor returns a fresh parameter map for a submission holding
// count statements.
func (c *StatementConfig) ParametersFor(count int) map[string]string {
	params := maps.Clone(c.Parameters)
	if params == nil {
		params = make(map[string]string, 1)
	}
	params[MultiStatementCountParam] = strconv.Itoa(count)
	return params
}
