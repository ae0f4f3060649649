package chat

import (
	"context"
	"errors"
	"strings"
)

// classifyStreamError maps a stream failure to a user-facing message by
// substring match. The returned cancelled flag marks user-initiated
// cancellation, which is not surfaced as an error.
func classifyStreamError(err error) (message string, cancelled bool) {
	if errors.Is(err, context.Canceled) {
		return "", true
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "abort") || strings.Contains(msg, "cancel"):
		return "", true
	case strings.Contains(msg, "401") || strings.Contains(msg, "unauthorized") || strings.Contains(msg, "invalid x-api-key") || strings.Contains(msg, "api key"):
		return "Invalid or missing API key. Check the provider credentials in your settings.", false
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests"):
		return "Rate limit exceeded. Wait a moment and try again.", false
	case strings.Contains(msg, "403") || strings.Contains(msg, "forbidden") || strings.Contains(msg, "permission"):
		return "Permission denied by the provider.", false
	case strings.Contains(msg, "no such host") || strings.Contains(msg, "connection refused") || strings.Contains(msg, "dial tcp") || strings.Contains(msg, "network is unreachable"):
		return "Cannot reach the provider. Check your network connection.", false
	default:
		return err.Error(), false
	}
}
