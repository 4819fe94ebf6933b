// Package resolution holds the resolution document model and its formatting
// rules: clause wrapping, operative numbering, and the plain-text projection.
package resolution

import (
	"fmt"
	"strings"
)

// Kind selects one of the two clause sections.
type Kind string

const (
	Preambulatory Kind = "preambulatory"
	Operative     Kind = "operative"
)

func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case Preambulatory, Operative:
		return Kind(s), true
	default:
		return "", false
	}
}

// Resolution is one bloc's document. Clause lists are append-only: elements
// are never reordered, edited in place, or removed.
type Resolution struct {
	Forum                string   `json:"forum"`
	QuestionOf           string   `json:"questionOf"`
	SubmittedBy          string   `json:"submittedBy"`
	CoSubmittedBy        string   `json:"coSubmittedBy"`
	PreambulatoryClauses []string `json:"preambulatoryClauses"`
	OperativeClauses     []string `json:"operativeClauses"`
}

// Blank returns an all-empty resolution with non-nil clause lists.
func Blank() Resolution {
	return Resolution{
		PreambulatoryClauses: []string{},
		OperativeClauses:     []string{},
	}
}

// Headers are the four whole-value-replace fields.
type Headers struct {
	Forum         string `json:"forum"`
	QuestionOf    string `json:"questionOf"`
	SubmittedBy   string `json:"submittedBy"`
	CoSubmittedBy string `json:"coSubmittedBy"`
}

// FormatPreambulatory wraps a preambulatory clause for storage.
func FormatPreambulatory(clause string) string {
	return "*" + clause + "*"
}

// FormatOperative numbers and wraps an operative clause. n must be one plus
// the operative list length read atomically with the append, so concurrent
// inserters never share a number.
func FormatOperative(n int, clause string) string {
	return fmt.Sprintf("%d. _%s_", n, clause)
}

// Render projects the resolution into its plain-text form. Pure and
// idempotent; recomputed from scratch on every change notification.
// Preambulatory clauses are joined by ",\n\n" with a trailing ",\n\n" when
// the section is non-empty. Operative clauses are joined by "\n\n" with every
// clause but the last suffixed ";" and the last suffixed ".".
func Render(r Resolution) string {
	var b strings.Builder

	if len(r.PreambulatoryClauses) > 0 {
		b.WriteString(strings.Join(r.PreambulatoryClauses, ",\n\n"))
		b.WriteString(",\n\n")
	}

	for i, clause := range r.OperativeClauses {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(clause)
		if i == len(r.OperativeClauses)-1 {
			b.WriteString(".")
		} else {
			b.WriteString(";")
		}
	}

	return b.String()
}
