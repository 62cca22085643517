package hebrew

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// RepairMojibake fixes lines whose Hebrew was decoded with the wrong code page.
// Two shapes are recognised:
//   - UTF-8 bytes read as Windows-1252 ("×©×œ×•×" for "שלום")
//   - Windows-1255 bytes read as Latin-1 ("ùìåí" for "שלום")
//
// A line is replaced only when the whole line decodes to Hebrew; everything
// else is returned unchanged.
func RepairMojibake(s string) string {
	if !strings.ContainsAny(s, "×Ö") && !hasLatin1Letters(s) {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = repairLine(line)
	}
	return strings.Join(lines, "\n")
}

func repairLine(line string) string {
	if IsHebrew(line) {
		return line
	}
	if strings.ContainsAny(line, "×Ö") {
		if fixed, ok := fromCP1252(line); ok {
			return fixed
		}
	}
	if latin1Dominant(line) {
		if fixed, ok := fromLatin1(line); ok {
			return fixed
		}
	}
	return line
}

// Windows-1252 leaves 0x81, 0x8D, 0x8F, 0x90 and 0x9D undefined. Depending on
// the decoder they arrive as C1 controls (kept byte for byte) or as U+FFFD.
// After the 0xD7 lead byte U+FFFD stands for 0x90 (א) or 0x9D (ם).
const (
	leadHebrew = 0xD7
	trailAlef  = 0x90
	trailFinal = 0x9D
)

// alefFinalWords end in א and would otherwise resolve to a final mem.
var alefFinalWords = map[string]bool{"לא": true, "הוא": true, "היא": true, "נא": true}

// prefixLetters may precede a word without a space (ו, ש, ה, כ, ל, ב, מ).
const prefixLetters = "ושהכלבמ"

// fromCP1252 re-encodes line to Windows-1252 one rune at a time and reads the
// bytes back as UTF-8.
func fromCP1252(line string) (string, bool) {
	rs := []rune(line)
	raw := make([]byte, 0, len(rs))
	type ambiguous struct{ pos, wordStart int }
	var finals []ambiguous
	wordStart := 0
	for i, r := range rs {
		switch {
		case r < 0x80:
			raw = append(raw, byte(r))
			wordStart = len(raw)
		case r <= 0x9F:
			raw = append(raw, byte(r))
		case r == utf8.RuneError:
			if len(raw) == 0 || raw[len(raw)-1] != leadHebrew {
				return "", false
			}
			if i+1 == len(rs) || rs[i+1] < 0x80 {
				finals = append(finals, ambiguous{pos: len(raw), wordStart: wordStart})
				raw = append(raw, trailFinal)
			} else {
				raw = append(raw, trailAlef)
			}
		default:
			b, ok := charmap.Windows1252.EncodeRune(r)
			if !ok {
				return "", false
			}
			raw = append(raw, b)
		}
	}
	for _, f := range finals {
		word := append([]byte(nil), raw[f.wordStart:f.pos+1]...)
		word[len(word)-1] = trailAlef
		if utf8.Valid(word) && isAlefFinalWord(string(word)) {
			raw[f.pos] = trailAlef
		}
	}
	if !utf8.Valid(raw) {
		return "", false
	}
	out := string(raw)
	if strings.ContainsRune(out, utf8.RuneError) || !IsHebrew(out) {
		return "", false
	}
	return out, true
}

func isAlefFinalWord(w string) bool {
	rs := []rune(w)
	for i := 0; i < len(rs) && i <= 3; i++ {
		if alefFinalWords[string(rs[i:])] {
			return true
		}
		if !strings.ContainsRune(prefixLetters, rs[i]) {
			return false
		}
	}
	return false
}

// fromLatin1 reads line back as Windows-1255 and accepts the result only when
// it looks like Hebrew text.
func fromLatin1(line string) (string, bool) {
	raw, err := charmap.ISO8859_1.NewEncoder().String(line)
	if err != nil {
		return "", false
	}
	out, err := charmap.Windows1255.NewDecoder().String(raw)
	if err != nil || strings.ContainsRune(out, utf8.RuneError) {
		return "", false
	}
	if !IsHebrew(out) || !plausibleHebrew(out) {
		return "", false
	}
	return out, true
}

// plausibleHebrew rejects decoded lines that still carry Latin letters or use a
// final letter form inside a word.
func plausibleHebrew(s string) bool {
	rs := []rune(s)
	for i, r := range rs {
		if unicode.Is(unicode.Latin, r) {
			return false
		}
		if _, final := finalToMedial[r]; !final {
			continue
		}
		inside := i > 0 && isHebrewLetter(rs[i-1]) && i+1 < len(rs) && isHebrewLetter(rs[i+1])
		if inside {
			return false
		}
	}
	return true
}

// Windows-1255 places א..ת at 0xE0..0xFA, which Latin-1 shows as à..ú.
func isLatin1HebrewSlot(r rune) bool {
	return r >= 0x00E0 && r <= 0x00FA && r != 0x00F7
}

// Windows-1255 points and Yiddish ligatures at 0xC0..0xD8 show as À..Ø.
func isLatin1PointSlot(r rune) bool {
	return r >= 0x00C0 && r <= 0x00D8 && r != 0x00D7
}

func hasLatin1Letters(s string) bool {
	for _, r := range s {
		if isLatin1HebrewSlot(r) {
			return true
		}
	}
	return false
}

// latin1Dominant reports whether every letter of line sits in a Windows-1255
// Hebrew slot. Any ASCII letter means the line is real Latin text.
func latin1Dominant(line string) bool {
	slots := 0
	for _, r := range line {
		if !unicode.IsLetter(r) {
			continue
		}
		switch {
		case isLatin1HebrewSlot(r):
			slots++
		case isLatin1PointSlot(r):
		default:
			return false
		}
	}
	return slots >= 2
}
