package adapters

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"ErrConcurrencyConflict", ErrConcurrencyConflict},
		{"ErrEmptyAggregateID", ErrEmptyAggregateID},
		{"ErrNoEvents", ErrNoEvents},
		{"ErrInvalidEvent", ErrInvalidEvent},
		{"ErrInvalidIdentifier", ErrInvalidIdentifier},
		{"ErrAdapterClosed", ErrAdapterClosed},
		{"ErrTxDone", ErrTxDone},
	}

	for _, tt := range tests {
		t.Run(tt.name+" has ledger prefix", func(t *testing.T) {
			assert.Contains(t, tt.err.Error(), "ledger:")
		})

		t.Run(tt.name+" is distinct", func(t *testing.T) {
			for _, other := range tests {
				if tt.name != other.name {
					assert.False(t, errors.Is(tt.err, other.err),
						"%s should not match %s", tt.name, other.name)
				}
			}
		})
	}
}

func TestSentinelErrorMessages(t *testing.T) {
	assert.Equal(t, "ledger: concurrency conflict", ErrConcurrencyConflict.Error())
	assert.Equal(t, "ledger: aggregate ID is required", ErrEmptyAggregateID.Error())
	assert.Equal(t, "ledger: no events to append", ErrNoEvents.Error())
	assert.Equal(t, "ledger: adapter is closed", ErrAdapterClosed.Error())
}
