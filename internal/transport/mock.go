package transport

import (
	"context"
	"math/rand"
	"sync"

	"github.com/unclebandit/outreach-dispatch/internal/model"
)

// MockSender accepts a configurable share of sends. It is used when no real
// platform credentials are configured.
type MockSender struct {
	mu          sync.Mutex
	rnd         *rand.Rand
	SuccessRate float64
}

func NewMockSender(successRate float64, seed int64) *MockSender {
	return &MockSender{rnd: rand.New(rand.NewSource(seed)), SuccessRate: successRate}
}

func (m *MockSender) Send(_ context.Context, _ model.SenderAccount, _ model.Contact, _ string) (Result, error) {
	m.mu.Lock()
	r := m.rnd.Float64()
	m.mu.Unlock()
	if r < m.SuccessRate {
		return Delivered(), nil
	}
	return Rejected("mock sending failed"), nil
}
