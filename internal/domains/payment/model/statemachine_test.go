package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    string
		to      string
		allowed bool
	}{
		{"pending to processing", StatusPending, StatusProcessing, true},
		{"pending to failed", StatusPending, StatusFailed, true},
		{"pending to cancelled", StatusPending, StatusCancelled, true},
		{"pending to completed skips processing", StatusPending, StatusCompleted, false},
		{"processing to completed", StatusProcessing, StatusCompleted, true},
		{"processing to failed", StatusProcessing, StatusFailed, true},
		{"processing to cancelled", StatusProcessing, StatusCancelled, true},
		{"processing back to pending", StatusProcessing, StatusPending, false},
		{"completed to refunded", StatusCompleted, StatusRefunded, true},
		{"completed to failed", StatusCompleted, StatusFailed, false},
		{"completed to completed", StatusCompleted, StatusCompleted, false},
		{"failed is terminal", StatusFailed, StatusProcessing, false},
		{"failed cannot complete", StatusFailed, StatusCompleted, false},
		{"cancelled is terminal", StatusCancelled, StatusCompleted, false},
		{"refunded is terminal", StatusRefunded, StatusCompleted, false},
		{"unknown status", "bogus", StatusCompleted, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, CanTransition(tt.from, tt.to))
		})
	}
}

func TestIsTerminalStatus(t *testing.T) {
	assert.False(t, IsTerminalStatus(StatusPending))
	assert.False(t, IsTerminalStatus(StatusProcessing))
	assert.True(t, IsTerminalStatus(StatusCompleted))
	assert.True(t, IsTerminalStatus(StatusFailed))
	assert.True(t, IsTerminalStatus(StatusCancelled))
	assert.True(t, IsTerminalStatus(StatusRefunded))
}

func TestFailureReason(t *testing.T) {
	reason, recognized := FailureReason(1032, "Request canceled by user.")
	assert.True(t, recognized)
	assert.Equal(t, "request cancelled by user", reason)

	reason, recognized = FailureReason(424242, "Some brand new gateway error")
	assert.False(t, recognized)
	assert.Equal(t, "Some brand new gateway error", reason)
}
