package provider

import (
	"errors"
	"fmt"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go/v3"
)

func TestStatusCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: 0,
		},
		{
			name:     "plain error",
			err:      errors.New("boom"),
			expected: 0,
		},
		{
			name:     "api error",
			err:      &openai.Error{StatusCode: 402},
			expected: 402,
		},
		{
			name:     "wrapped api error",
			err:      fmt.Errorf("completion failed: %w", &openai.Error{StatusCode: 429}),
			expected: 429,
		},
		{
			name:     "anthropic api error",
			err:      &anthropic.Error{StatusCode: 402},
			expected: 402,
		},
		{
			name:     "wrapped anthropic api error",
			err:      fmt.Errorf("completion failed: %w", &anthropic.Error{StatusCode: 529}),
			expected: 529,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusCode(tt.err); got != tt.expected {
				t.Errorf("got %d, want %d", got, tt.expected)
			}
		})
	}
}
