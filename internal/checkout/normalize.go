package checkout

// digitsOnly strips every non-digit byte. Document, phone and postal code
// are stored normalized; the submitted formatting is never persisted.
func digitsOnly(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			out = append(out, s[i])
		}
	}
	return string(out)
}
