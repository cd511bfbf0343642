package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
)

// PublisherMock stands in for the event publisher and remembers the routing
// key of every publish, including failed ones.
type PublisherMock struct {
	mock.Mock

	mu   sync.Mutex
	keys []string
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	m.mu.Lock()
	m.keys = append(m.keys, routingKey)
	m.mu.Unlock()

	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

// RoutingKeys returns the routing keys seen so far, in publish order.
func (m *PublisherMock) RoutingKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.keys...)
}
