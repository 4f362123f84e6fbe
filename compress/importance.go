package compress

import (
	"strings"
	"unicode"
)

// Control-flow and declaration keywords that mark a line as structurally
// important across the languages the scanner typically feeds us.
var structuralKeywords = []string{
	"func ", "def ", "class ", "type ", "interface ", "struct ",
	"return", "if ", "else", "for ", "while ", "switch ", "case ",
	"try", "catch", "except", "raise ", "throw ", "defer ", "go ",
	"import ", "package ", "const ", "var ",
}

// scoreLine assigns an importance score to one line of input. Named
// entities, function/API signatures, and control-flow keywords score higher
// than prose, matching the order in which details should survive
// compression.
func scoreLine(line string) float64 {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return 0
	}

	score := 0.0
	lower := strings.ToLower(trimmed)

	for _, kw := range structuralKeywords {
		if strings.Contains(lower, kw) {
			score += 3
			break
		}
	}

	// Signature-shaped lines: an identifier followed by an argument list.
	if strings.Contains(trimmed, "(") && strings.Contains(trimmed, ")") {
		score += 2
	}

	entities := 0
	for _, tok := range strings.Fields(trimmed) {
		if isEntity(tok) {
			entities++
		}
	}
	if entities > 4 {
		entities = 4
	}
	score += float64(entities)

	if strings.ContainsAny(trimmed, "0123456789") {
		score += 0.5
	}

	// Long prose-only lines rank below short dense ones.
	words := len(strings.Fields(trimmed))
	if words > 0 {
		score += 1.0 / float64(words)
	}

	return score
}

// isEntity reports whether a token looks like a named entity: CamelCase,
// snake_case, dotted paths, or path-like identifiers rather than plain
// prose words.
func isEntity(tok string) bool {
	tok = strings.Trim(tok, ".,;:()[]{}\"'`")
	if len(tok) < 2 {
		return false
	}
	if strings.ContainsAny(tok, "_./") {
		return true
	}
	hasUpper := false
	hasLower := false
	for i, r := range tok {
		if unicode.IsUpper(r) {
			if i > 0 {
				return true // interior capital: CamelCase
			}
			hasUpper = true
		}
		if unicode.IsLower(r) {
			hasLower = true
		}
	}
	return hasUpper && hasLower && len(tok) > 6
}
