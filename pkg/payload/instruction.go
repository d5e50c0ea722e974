package payload

// RedactedMarker replaces query text in any payload copy that leaves the
// orchestrator after the query has been executed on the caller's behalf.
const RedactedMarker = "REDACTED"

// QueryInstruction is a request, embedded in an agent delta, to execute SQL.
type QueryInstruction struct {
	SQL string
	// Preamble is the analyst text accompanying the query; empty when absent.
	Preamble string
}

// HasPreamble reports whether the instruction carries analyst text.
func (q QueryInstruction) HasPreamble() bool {
	return q.Preamble != ""
}

// ExtractInstruction looks for a query instruction at
// delta.content[1].tool_results.content[0].json. The instruction is present
// only when that object has a non-empty "sql" string.
func ExtractInstruction(p any) (QueryInstruction, bool) {
	obj, ok := instructionObject(p)
	if !ok {
		return QueryInstruction{}, false
	}
	sql, ok := AsString(obj["sql"])
	if !ok || sql == "" {
		return QueryInstruction{}, false
	}
	preamble, _ := AsString(obj["text"])
	return QueryInstruction{SQL: sql, Preamble: preamble}, true
}

// RedactInstruction returns a deep copy of p whose embedded SQL is replaced
// by RedactedMarker. p itself is never modified. A payload without an
// instruction is returned as a plain copy.
func RedactInstruction(p any) any {
	redacted := Clone(p)
	obj, ok := instructionObject(redacted)
	if !ok {
		return redacted
	}
	if _, has := obj["sql"]; has {
		obj["sql"] = RedactedMarker
	}
	return redacted
}

func instructionObject(p any) (map[string]any, bool) {
	content, ok := DeltaContent(p)
	if !ok || len(content) < 2 {
		return nil, false
	}
	v, ok := Lookup(content[1], "tool_results", "content", 0, "json")
	if !ok {
		return nil, false
	}
	return AsMap(v)
}
