package masking

// Masker is the interface for code-based maskers that need structural awareness
// beyond regex pattern matching, such as parsing a JSON error body and
// masking values by key.
type Masker interface {
	// Name returns the unique identifier for this masker.
	// Must match an entry in config.GetBuiltinConfig().CodeMaskers.
	Name() string

	// AppliesTo performs a lightweight check on whether this masker
	// should process the data. Should be fast (string contains, not parsing).
	AppliesTo(data string) bool

	// Mask applies masking logic and returns the masked result.
	// Must return the original data on parse errors.
	Mask(data string) string
}
