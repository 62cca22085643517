package keyword

import "unicode/utf8"

// editDistance returns the rune-level Levenshtein distance between a and b,
// or max+1 as soon as the distance is known to exceed max.
func editDistance(a, b string, max int) int {
	if a == b {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	if d := len(ra) - len(rb); d > max || -d > max {
		return max + 1
	}

	// two rows are enough
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		rowMin := curr[0]
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
			rowMin = min(rowMin, curr[j])
		}
		if rowMin > max {
			return max + 1
		}
		prev, curr = curr, prev
	}
	if prev[len(rb)] > max {
		return max + 1
	}
	return prev[len(rb)]
}

// termFuzziness scales the allowed edits with the term length in runes,
// capped at limit. Short terms match exactly.
func termFuzziness(term string, limit int) int {
	n := utf8.RuneCountInString(term)
	switch {
	case n < 4:
		return 0
	case n < 8:
		return min(1, limit)
	default:
		return min(2, limit)
	}
}
