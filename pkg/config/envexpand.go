package config

import (
	"bytes"
	"os"
	"strings"
	"text/template"
)

// ExpandEnv expands environment variables in YAML content using Go templates.
// The {{.VAR_NAME}} syntax leaves literal $ alone, which matters for regex
// masking patterns (`^secret.*$`) and SQL snippets in the agent template.
//
// Examples:
//   - {{.SNOWFLAKE_URL}} → value of SNOWFLAKE_URL
//   - https://{{.SNOWFLAKE_ACCOUNT}}.snowflakecomputing.com → account URL
//   - pattern: "token=${VALUE}" → preserved literally
//
// Missing variables expand to empty string. If the content is not a valid
// template it is returned unchanged and the YAML parser reports the problem.
func ExpandEnv(data []byte) []byte {
	tmpl, err := template.New("config").Option("missingkey=zero").Parse(string(data))
	if err != nil {
		return data
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, environMap()); err != nil {
		return data
	}

	return buf.Bytes()
}

// environMap returns the process environment as a map. Values may contain
// '=' so only the first one separates key and value.
func environMap() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if key, value, ok := strings.Cut(kv, "="); ok && key != "" {
			env[key] = value
		}
	}
	return env
}
