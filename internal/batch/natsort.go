package batch

import "strings"

// naturalLess orders strings with embedded numbers the way a human
// expects: numeric runs compare as integers, so "img2" sorts before
// "img10". Non-numeric runs compare case-insensitively.
func naturalLess(a, b string) bool {
	for len(a) > 0 && len(b) > 0 {
		aChunk, aNum, aRest := nextChunk(a)
		bChunk, bNum, bRest := nextChunk(b)

		if aNum && bNum {
			if c := compareNumeric(aChunk, bChunk); c != 0 {
				return c < 0
			}
		} else {
			al, bl := strings.ToLower(aChunk), strings.ToLower(bChunk)
			if al != bl {
				return al < bl
			}
		}
		a, b = aRest, bRest
	}
	return len(a) < len(b)
}

// nextChunk splits off the leading run of digits or non-digits.
func nextChunk(s string) (chunk string, numeric bool, rest string) {
	numeric = isDigit(s[0])
	i := 1
	for i < len(s) && isDigit(s[i]) == numeric {
		i++
	}
	return s[:i], numeric, s[i:]
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// compareNumeric compares two digit runs as integers without parsing,
// so arbitrarily long runs cannot overflow.
func compareNumeric(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}
