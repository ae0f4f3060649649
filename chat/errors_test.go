package chat

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyStreamError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		contains  string
		cancelled bool
	}{
		{name: "context cancellation", err: context.Canceled, cancelled: true},
		{name: "wrapped cancellation", err: fmt.Errorf("stream: %w", context.Canceled), cancelled: true},
		{name: "abort message", err: errors.New("request aborted by caller"), cancelled: true},
		{name: "unauthorized", err: errors.New("401 Unauthorized"), contains: "API key"},
		{name: "invalid key", err: errors.New("invalid x-api-key header"), contains: "API key"},
		{name: "rate limited", err: errors.New("429 Too Many Requests"), contains: "Rate limit"},
		{name: "forbidden", err: errors.New("403 Forbidden"), contains: "Permission denied"},
		{name: "dns failure", err: errors.New("dial tcp: lookup api.anthropic.com: no such host"), contains: "network"},
		{name: "connection refused", err: errors.New("dial tcp 127.0.0.1:443: connection refused"), contains: "network"},
		{name: "unknown falls through raw", err: errors.New("something odd happened"), contains: "something odd happened"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, cancelled := classifyStreamError(tt.err)
			assert.Equal(t, tt.cancelled, cancelled)
			if tt.contains != "" {
				assert.Contains(t, msg, tt.contains)
			}
		})
	}
}
