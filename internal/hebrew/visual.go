package hebrew

import "unicode"

var finalToMedial = map[rune]rune{
	'ך': 'כ',
	'ם': 'מ',
	'ן': 'נ',
	'ף': 'פ',
	'ץ': 'צ',
}

var medialToFinal = map[rune]rune{
	'כ': 'ך',
	'מ': 'ם',
	'נ': 'ן',
	'פ': 'ף',
	'צ': 'ץ',
}

var mirrored = map[rune]rune{
	'(': ')', ')': '(',
	'[': ']', ']': '[',
	'{': '}', '}': '{',
	'<': '>', '>': '<',
}

// FixVisualOrder reverses a single line that was extracted in visual order.
//
// Final letter forms decide the direction: in logical text they end words and
// their medial partners never do. A line is reversed only when the visual
// evidence (finals at word start, medials at word end) outweighs the logical
// evidence. Reversal swaps the two counts, so a second call is a no-op.
// Runs of Latin letters and digits keep their left-to-right order and paired
// brackets are mirrored.
func FixVisualOrder(line string) string {
	visual, logical := orderEvidence(line)
	if visual <= logical {
		return line
	}
	return reverseLine(line)
}

func orderEvidence(line string) (visual, logical int) {
	rs := []rune(line)
	for i := 0; i < len(rs); {
		if !isHebrewLetter(rs[i]) {
			i++
			continue
		}
		j := i
		for j < len(rs) && isHebrewLetter(rs[j]) {
			j++
		}
		if j-i >= 2 {
			first, last := rs[i], rs[j-1]
			if _, ok := finalToMedial[first]; ok {
				visual++
			}
			if _, ok := medialToFinal[first]; ok {
				logical++
			}
			if _, ok := medialToFinal[last]; ok {
				visual++
			}
			if _, ok := finalToMedial[last]; ok {
				logical++
			}
		}
		i = j
	}
	return visual, logical
}

func reverseLine(line string) string {
	rs := []rune(line)
	for i, j := 0, len(rs)-1; i < j; i, j = i+1, j-1 {
		rs[i], rs[j] = rs[j], rs[i]
	}
	for i, r := range rs {
		if m, ok := mirrored[r]; ok {
			rs[i] = m
		}
	}
	for i := 0; i < len(rs); {
		if !isLTR(rs[i]) {
			i++
			continue
		}
		j := i + 1
		for j < len(rs) {
			if isLTR(rs[j]) {
				j++
				continue
			}
			if isConnector(rs[j]) && j+1 < len(rs) && isLTR(rs[j+1]) {
				j += 2
				continue
			}
			break
		}
		for a, b := i, j-1; a < b; a, b = a+1, b-1 {
			rs[a], rs[b] = rs[b], rs[a]
		}
		i = j
	}
	return string(rs)
}

func isLTR(r rune) bool {
	if r < 0x80 {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}
	return unicode.Is(unicode.Latin, r) || unicode.IsDigit(r)
}

func isConnector(r rune) bool {
	switch r {
	case '.', ',', ':', '/', '-', '%':
		return true
	}
	return false
}
