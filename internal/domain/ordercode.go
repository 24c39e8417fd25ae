package domain

import (
	"strconv"
	"time"
)

// OrderCodeSuffixLen is the number of trailing order-code digits embedded in
// a bank transfer description. Only this suffix survives the human transfer
// flow, so reconciliation matches on it rather than the full code.
const OrderCodeSuffixLen = 6

// NewOrderCode generates a top-up order code from a coarse timestamp.
// Codes are digits only so the suffix can be typed into a bank transfer
// description by hand.
func NewOrderCode(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 10)
}

// OrderCodeSuffix returns the last OrderCodeSuffixLen digits of code.
// Codes shorter than the suffix length are returned whole.
func OrderCodeSuffix(code string) string {
	if len(code) <= OrderCodeSuffixLen {
		return code
	}
	return code[len(code)-OrderCodeSuffixLen:]
}

// ParseDescriptionSuffixes extracts candidate order-code suffixes from a
// free-text transfer description. Every maximal digit run of at least the
// suffix length contributes its trailing digits; shorter runs are noise
// (amounts, dates, bank codes routinely appear in descriptions).
// Duplicates are collapsed, order of first appearance is preserved.
func ParseDescriptionSuffixes(description string) []string {
	var (
		suffixes []string
		seen     = map[string]struct{}{}
		runStart = -1
	)

	flush := func(end int) {
		if runStart < 0 {
			return
		}
		run := description[runStart:end]
		runStart = -1
		if len(run) < OrderCodeSuffixLen {
			return
		}
		s := run[len(run)-OrderCodeSuffixLen:]
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		suffixes = append(suffixes, s)
	}

	for i := 0; i < len(description); i++ {
		if description[i] >= '0' && description[i] <= '9' {
			if runStart < 0 {
				runStart = i
			}
			continue
		}
		flush(i)
	}
	flush(len(description))

	return suffixes
}
