package payload

// AssistantContent returns the delta.content items of p that belong in the
// replayed assistant turn. Items invoking toolName (tool_use.name ==
// toolName) are left out: they mark the query request itself.
func AssistantContent(p any, toolName string) []any {
	content, ok := DeltaContent(p)
	if !ok {
		return nil
	}
	var items []any
	for _, item := range content {
		if IsToolInvocation(item, toolName) {
			continue
		}
		items = append(items, item)
	}
	return items
}

// IsToolInvocation reports whether a content item is a tool_use of toolName.
func IsToolInvocation(item any, toolName string) bool {
	name, ok := Lookup(item, "tool_use", "name")
	if !ok {
		return false
	}
	s, ok := AsString(name)
	return ok && s == toolName
}
