// Package relay carries encoded room frames between the hub and every
// process that has sessions in the room.
package relay

import (
	"context"
	"errors"
	"sync"
)

// ErrNotSubscribed is returned by Publish before Subscribe has been called.
var ErrNotSubscribed = errors.New("relay has no subscriber")

// DeliverFunc hands a frame published to room to local sessions.
type DeliverFunc func(room string, payload []byte)

// Relay is the room pub/sub transport.
type Relay interface {
	Publish(ctx context.Context, room string, payload []byte) error
	Subscribe(ctx context.Context, deliver DeliverFunc) error
	Close() error
}

// Local delivers frames in-process, synchronously.
type Local struct {
	mu      sync.RWMutex
	deliver DeliverFunc
}

// NewLocal constructs a Local relay.
func NewLocal() *Local {
	return &Local{}
}

func (l *Local) Publish(ctx context.Context, room string, payload []byte) error {
	l.mu.RLock()
	deliver := l.deliver
	l.mu.RUnlock()
	if deliver == nil {
		return ErrNotSubscribed
	}
	deliver(room, payload)
	return nil
}

func (l *Local) Subscribe(ctx context.Context, deliver DeliverFunc) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deliver = deliver
	return nil
}

func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deliver = nil
	return nil
}
