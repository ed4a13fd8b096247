// Package endpoint provides the request/reply transports the aggregation
// loop answers queries on. Every transport hands frames to the loop one at a
// time and waits for the reply before reading the next frame from the same
// peer.
package endpoint

import (
	"context"
	"strings"
	"sync"

	"codeberg.org/mutker/anemone/internal/errors"
)

// Endpoint is owned by a single consumer that answers every Exchange
type Endpoint interface {
	Requests() <-chan *Exchange
	Addr() string
	Close() error
}

// Exchange is one request frame awaiting its reply
type Exchange struct {
	Frame []byte
	reply chan []byte
	once  sync.Once
}

func newExchange(frame []byte) *Exchange {
	return &Exchange{Frame: frame, reply: make(chan []byte, 1)}
}

// Reply sends the response frame. Only the first call has an effect.
func (e *Exchange) Reply(frame []byte) {
	e.once.Do(func() {
		e.reply <- frame
	})
}

func (e *Exchange) wait(done <-chan struct{}) ([]byte, bool) {
	select {
	case frame := <-e.reply:
		return frame, true
	case <-done:
		return nil, false
	}
}

// Listen binds address. tcp://, ipc:// and inproc:// addresses get a
// ZeroMQ REP socket, ws:// addresses a WebSocket server.
func Listen(ctx context.Context, address string) (Endpoint, error) {
	scheme, _, ok := strings.Cut(address, "://")
	if !ok {
		return nil, errors.New().WithData(ErrInvalidAddress, address)
	}

	switch scheme {
	case "tcp", "ipc", "inproc":
		return listenZMQ(ctx, address)
	case "ws":
		return listenWebSocket(ctx, address)
	default:
		return nil, errors.New().WithData(ErrUnsupportedScheme, scheme)
	}
}
