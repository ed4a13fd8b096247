package inspector

import (
	"context"
	"strings"
	"time"

	"codeberg.org/mutker/anemone/internal/errors"
	"github.com/go-zeromq/zmq4"
	"github.com/gorilla/websocket"
)

type transport interface {
	roundTrip(ctx context.Context, frame []byte) ([]byte, error)
	close() error
}

func dialTransport(ctx context.Context, address string) (transport, error) {
	errFactory := errors.New()

	scheme, _, ok := strings.Cut(address, "://")
	if !ok {
		return nil, errFactory.WithData(ErrUnsupportedScheme, address)
	}

	switch scheme {
	case "tcp", "ipc", "inproc":
		return dialZMQ(address)
	case "ws":
		return dialWebSocket(ctx, address)
	default:
		return nil, errFactory.WithData(ErrUnsupportedScheme, scheme)
	}
}

type zmqTransport struct {
	sock   zmq4.Socket
	cancel context.CancelFunc
}

func dialZMQ(address string) (*zmqTransport, error) {
	// The socket outlives the dial context
	ctx, cancel := context.WithCancel(context.Background())
	sock := zmq4.NewReq(ctx)
	if err := sock.Dial(address); err != nil {
		cancel()
		sock.Close()
		return nil, errors.New().Wrap(ErrDial, err)
	}
	return &zmqTransport{sock: sock, cancel: cancel}, nil
}

type result struct {
	frame []byte
	err   error
}

// A REQ socket cannot abandon a pending request. The client closes the
// transport after any failed round trip, which also ends the goroutine.
func (z *zmqTransport) roundTrip(ctx context.Context, frame []byte) ([]byte, error) {
	done := make(chan result, 1)
	go func() {
		if err := z.sock.Send(zmq4.NewMsg(frame)); err != nil {
			done <- result{err: err}
			return
		}
		msg, err := z.sock.Recv()
		if err != nil {
			done <- result{err: err}
			return
		}
		done <- result{frame: msg.Bytes()}
	}()

	select {
	case res := <-done:
		return res.frame, res.err
	case <-ctx.Done():
		return nil, errors.New().Wrap(errors.ErrTimeout, ctx.Err())
	}
}

func (z *zmqTransport) close() error {
	z.cancel()
	return z.sock.Close()
}

type wsTransport struct {
	conn *websocket.Conn
}

func dialWebSocket(ctx context.Context, address string) (*wsTransport, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, address, nil)
	if err != nil {
		return nil, errors.New().Wrap(ErrDial, err)
	}
	return &wsTransport{conn: conn}, nil
}

func (w *wsTransport) roundTrip(ctx context.Context, frame []byte) ([]byte, error) {
	// zero when ctx has no deadline, which clears earlier deadlines
	deadline, _ := ctx.Deadline()
	if err := w.conn.SetWriteDeadline(deadline); err != nil {
		return nil, err
	}
	if err := w.conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}

	// Closing the connection is the only way to interrupt a blocked read
	stop := context.AfterFunc(ctx, func() { w.conn.Close() })
	defer stop()

	reply, err := w.exchange(frame)
	if err != nil && ctx.Err() != nil {
		return nil, errors.New().Wrap(errors.ErrTimeout, ctx.Err())
	}
	return reply, err
}

func (w *wsTransport) exchange(frame []byte) ([]byte, error) {
	if err := w.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return nil, err
	}
	_, reply, err := w.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return reply, nil
}

func (w *wsTransport) close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return w.conn.Close()
}
