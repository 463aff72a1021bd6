// Package currency converts the free-form rupiah text found in sheet cells
// ("Rp 150.000", "150000", "Rp150,000") to whole-rupiah integers and back.
// Parsing is fail-soft: garbage input becomes 0, never an error, because the
// upstream cells were typed by hand for years.
package currency

import "strings"

// ParseRupiah returns the integer amount encoded in text. The "Rp" marker,
// dot and comma separators, and whitespace are stripped before parsing.
// A leading minus sign is preserved. Unparseable input returns 0.
func ParseRupiah(text string) int64 {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0
	}

	negative := false
	if strings.HasPrefix(s, "-") {
		negative = true
		s = s[1:]
	}
	s = strings.ReplaceAll(s, "Rp", "")
	s = strings.ReplaceAll(s, "rp", "")
	s = strings.ReplaceAll(s, "RP", "")
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	if !negative && strings.HasPrefix(s, "-") {
		negative = true
		s = s[1:]
	}
	if s == "" {
		return 0
	}

	var amount int64
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0
		}
		amount = amount*10 + int64(c-'0')
	}
	if negative {
		return -amount
	}
	return amount
}

// FormatRupiah renders amount with the shop locale's dot thousands separator,
// e.g. 1234567 -> "Rp 1.234.567". Negative amounts keep their sign in front
// of the marker so ParseRupiah(FormatRupiah(x)) == x holds for all x.
func FormatRupiah(amount int64) string {
	prefix := "Rp "
	if amount < 0 {
		prefix = "-Rp "
		amount = -amount
	}
	return prefix + groupThousands(amount)
}

func groupThousands(amount int64) string {
	digits := make([]byte, 0, 24)
	if amount == 0 {
		return "0"
	}
	for amount > 0 {
		digits = append(digits, byte('0'+amount%10))
		amount /= 10
	}

	var b strings.Builder
	for i := len(digits) - 1; i >= 0; i-- {
		b.WriteByte(digits[i])
		if i > 0 && i%3 == 0 {
			b.WriteByte('.')
		}
	}
	return b.String()
}
