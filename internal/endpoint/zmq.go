package endpoint

import (
	"context"
	"strings"
	"sync"

	"codeberg.org/mutker/anemone/internal/errors"
	"codeberg.org/mutker/anemone/internal/logger"
	"github.com/go-zeromq/zmq4"
)

type zmqEndpoint struct {
	ctx       context.Context
	address   string
	sock      zmq4.Socket
	requests  chan *Exchange
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func listenZMQ(ctx context.Context, address string) (*zmqEndpoint, error) {
	sock := zmq4.NewRep(ctx)
	if err := sock.Listen(address); err != nil {
		sock.Close()
		return nil, errors.New().WithData(ErrBindFailed, struct {
			Address string
			Error   string
		}{
			Address: address,
			Error:   err.Error(),
		})
	}

	e := &zmqEndpoint{
		ctx:      ctx,
		address:  address,
		sock:     sock,
		requests: make(chan *Exchange),
		done:     make(chan struct{}),
	}

	e.wg.Add(1)
	go e.serve()

	logger.Debug().Str("address", e.Addr()).Msg("ZeroMQ query endpoint bound")

	return e, nil
}

func (e *zmqEndpoint) serve() {
	defer e.wg.Done()

	for {
		msg, err := e.sock.Recv()
		if err != nil {
			if e.closing() {
				return
			}
			logger.Warn().Err(err).Str("address", e.address).Msg("Query endpoint receive failed, endpoint stopped")
			return
		}

		ex := newExchange(msg.Bytes())
		select {
		case e.requests <- ex:
		case <-e.done:
			return
		}

		frame, ok := ex.wait(e.done)
		if !ok {
			return
		}

		if err := e.sock.Send(zmq4.NewMsg(frame)); err != nil {
			if e.closing() {
				return
			}
			logger.Warn().Err(err).Msg("Query endpoint reply failed")
		}
	}
}

func (e *zmqEndpoint) closing() bool {
	select {
	case <-e.done:
		return true
	default:
		return e.ctx.Err() != nil
	}
}

func (e *zmqEndpoint) Requests() <-chan *Exchange {
	return e.requests
}

func (e *zmqEndpoint) Addr() string {
	// Resolves tcp://host:0 to the bound port
	if strings.HasPrefix(e.address, "tcp://") {
		if addr := e.sock.Addr(); addr != nil {
			return "tcp://" + addr.String()
		}
	}
	return e.address
}

func (e *zmqEndpoint) Close() error {
	var err error
	e.closeOnce.Do(func() {
		close(e.done)
		if cerr := e.sock.Close(); cerr != nil {
			err = errors.New().Wrap(ErrCloseFailed, cerr)
		}
		e.wg.Wait()
	})
	return err
}
