package endpoint

import (
	"context"
	"sync"

	"codeberg.org/mutker/anemone/internal/errors"
)

// Memory is an in-process endpoint. Do plays the role of the remote peer.
type Memory struct {
	requests  chan *Exchange
	done      chan struct{}
	closeOnce sync.Once
}

func NewMemory() *Memory {
	return &Memory{
		requests: make(chan *Exchange),
		done:     make(chan struct{}),
	}
}

// Do sends frame and waits for the reply
func (m *Memory) Do(ctx context.Context, frame []byte) ([]byte, error) {
	errFactory := errors.New()
	ex := newExchange(frame)

	select {
	case <-m.done:
		return nil, errFactory.New(ErrClosed)
	default:
	}

	select {
	case m.requests <- ex:
	case <-m.done:
		return nil, errFactory.New(ErrClosed)
	case <-ctx.Done():
		return nil, errFactory.Wrap(errors.ErrTimeout, ctx.Err())
	}

	select {
	case reply := <-ex.reply:
		return reply, nil
	case <-m.done:
		return nil, errFactory.New(ErrClosed)
	case <-ctx.Done():
		return nil, errFactory.Wrap(errors.ErrTimeout, ctx.Err())
	}
}

func (m *Memory) Requests() <-chan *Exchange {
	return m.requests
}

func (m *Memory) Addr() string {
	return "memory://"
}

func (m *Memory) Close() error {
	m.closeOnce.Do(func() {
		close(m.done)
	})
	return nil
}
