package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Prompt is one recorded Complete call.
type Prompt struct {
	System string
	User   string
}

// MockAnswerer is a test double for ai.Answerer.
type MockAnswerer struct {
	// CompleteFunc is called by Complete if set.
	// If nil, the answer reports how many context bullets the prompt carried.
	CompleteFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, error)

	mu      sync.Mutex
	prompts []Prompt
}

// NewMockAnswerer creates a mock answerer with default behavior.
func NewMockAnswerer() *MockAnswerer {
	return &MockAnswerer{}
}

// Complete records the prompts and returns a canned answer.
func (m *MockAnswerer) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, Prompt{System: systemPrompt, User: userPrompt})
	fn := m.CompleteFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, systemPrompt, userPrompt)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	bullets := 0
	for _, line := range strings.Split(userPrompt, "\n") {
		if strings.HasPrefix(line, "- ") {
			bullets++
		}
	}
	return fmt.Sprintf("answer from %d contexts", bullets), nil
}

// CallCount returns the number of Complete calls.
func (m *MockAnswerer) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// Prompts returns the recorded prompt pairs.
func (m *MockAnswerer) Prompts() []Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Prompt(nil), m.prompts...)
}

// Reset clears recorded prompts and the injected function.
func (m *MockAnswerer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = nil
	m.CompleteFunc = nil
}
