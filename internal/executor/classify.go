package executor

import "strings"

// nonRetryableSubstrings are the broker error-message fragments that mean
// retrying would never succeed, matched case-insensitively.
var nonRetryableSubstrings = []string{
	"insufficient funds",
	"insufficient margin",
	"invalid quantity",
	"invalid price",
	"invalid symbol",
	"blocked",
	"disabled",
	"order window closed",
	"market closed",
}

// isNonRetryable reports whether the broker's error text describes a
// rejection that no amount of retrying will fix.
func isNonRetryable(message string) bool {
	lower := strings.ToLower(message)
	for _, s := range nonRetryableSubstrings {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
