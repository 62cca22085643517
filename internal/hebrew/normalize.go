// Package hebrew corrects artifacts that PDF text extraction leaves in Hebrew text:
// mojibake, presentation forms, points and cantillation, stray bidi controls and
// lines emitted in visual (reversed) order.
package hebrew

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize returns the logical-order, point-free form of raw extracted page text.
// It is pure and idempotent. Lines are trimmed, inner whitespace is collapsed and
// empty lines are dropped.
func Normalize(raw string) string {
	// compose first: decomposed accents would otherwise reach RepairMojibake
	// only on a second call
	lines := splitLines(RepairMojibake(norm.NFC.String(raw)))
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = collapseSpaces(fold(line))
		if line == "" {
			continue
		}
		out = append(out, FixVisualOrder(line))
	}
	return strings.Join(out, "\n")
}

// NormalizeQuery applies the same character-level folding as Normalize to a user
// query, without the visual-order correction, and flattens it onto one line.
func NormalizeQuery(q string) string {
	return collapseSpaces(fold(RepairMojibake(norm.NFC.String(q))))
}

// StripDiacritics removes Hebrew points and cantillation marks and folds
// presentation forms to their base letters.
func StripDiacritics(s string) string {
	return fold(s)
}

// IsHebrew reports whether s contains at least one Hebrew letter.
func IsHebrew(s string) bool {
	for _, r := range s {
		if isHebrewLetter(r) {
			return true
		}
	}
	return false
}

func isHebrewLetter(r rune) bool {
	return r >= 'א' && r <= 'ת'
}

// isPoint matches niqqud and te'amim. Maqaf, paseq, sof pasuq and nun hafukha are punctuation and stay.
func isPoint(r rune) bool {
	switch {
	case r >= 0x0591 && r <= 0x05BD:
		return true
	case r == 0x05BF, r == 0x05C1, r == 0x05C2, r == 0x05C4, r == 0x05C5, r == 0x05C7:
		return true
	}
	return false
}

func isFormatControl(r rune) bool {
	switch {
	case r == 0x200B, r == 0x200E, r == 0x200F, r == 0xFEFF:
		return true
	case r >= 0x202A && r <= 0x202E:
		return true
	case r >= 0x2066 && r <= 0x2069:
		return true
	}
	return false
}

// fold runs the character-level pipeline: drop format controls, NFKC (which
// decomposes U+FB1D..U+FB4F), drop points, recompose.
func fold(s string) string {
	t := transform.Chain(
		runes.Remove(runes.Predicate(isFormatControl)),
		norm.NFKC,
		runes.Remove(runes.Predicate(isPoint)),
		norm.NFC,
	)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.Split(s, "\n")
}

func collapseSpaces(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	wasSpace := false
	for _, r := range strings.TrimSpace(s) {
		if unicode.IsSpace(r) {
			if !wasSpace {
				b.WriteRune(' ')
				wasSpace = true
			}
			continue
		}
		b.WriteRune(r)
		wasSpace = false
	}
	return b.String()
}
