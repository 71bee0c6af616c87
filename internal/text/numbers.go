package text

import (
	"strconv"
	"strings"
)

var (
	ones = []string{"zero", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine",
		"ten", "eleven", "twelve", "thirteen", "fourteen", "fifteen", "sixteen", "seventeen", "eighteen", "nineteen"}
	tens   = []string{"", "", "twenty", "thirty", "forty", "fifty", "sixty", "seventy", "eighty", "ninety"}
	scales = []struct {
		value int64
		name  string
	}{
		{1_000_000_000, "billion"},
		{1_000_000, "million"},
		{1_000, "thousand"},
		{100, "hundred"},
	}
)

// SpellNumber spells a non-negative integer in English words.
func SpellNumber(n int64) string {
	if n < 0 {
		return "minus " + SpellNumber(-n)
	}

	if n < 20 {
		return ones[n]
	}

	if n < 100 {
		if n%10 == 0 {
			return tens[n/10]
		}

		return tens[n/10] + " " + ones[n%10]
	}

	for _, s := range scales {
		if n >= s.value {
			head := SpellNumber(n/s.value) + " " + s.name
			if rest := n % s.value; rest > 0 {
				return head + " " + SpellNumber(rest)
			}

			return head
		}
	}

	return strconv.FormatInt(n, 10)
}

// ExpandNumbers replaces digit runs with spelled-out words. A single '.'
// between two digit runs is read as "point" followed by the digits.
func ExpandNumbers(s string) string {
	var b strings.Builder

	i := 0
	for i < len(s) {
		if !isDigit(s[i]) {
			b.WriteByte(s[i])
			i++
			continue
		}

		j := i
		for j < len(s) && (isDigit(s[j]) || (s[j] == ',' && j+1 < len(s) && isDigit(s[j+1]))) {
			j++
		}

		digits := strings.ReplaceAll(s[i:j], ",", "")
		if n, err := strconv.ParseInt(digits, 10, 64); err == nil && n < 1_000_000_000_000 {
			b.WriteString(SpellNumber(n))
		} else {
			b.WriteString(spellDigits(digits))
		}

		if j+1 < len(s) && s[j] == '.' && isDigit(s[j+1]) {
			k := j + 1
			for k < len(s) && isDigit(s[k]) {
				k++
			}

			b.WriteString(" point ")
			b.WriteString(spellDigits(s[j+1 : k]))
			j = k
		}

		i = j
	}

	return b.String()
}

func spellDigits(digits string) string {
	words := make([]string, 0, len(digits))
	for i := range len(digits) {
		words = append(words, ones[digits[i]-'0'])
	}

	return strings.Join(words, " ")
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
