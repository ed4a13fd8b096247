package endpoint

import (
	"context"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"codeberg.org/mutker/anemone/internal/errors"
	"codeberg.org/mutker/anemone/internal/logger"
	"codeberg.org/mutker/anemone/pkg/protocol"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait         = 10 * time.Second
	wsReadHeaderTimeout = 10 * time.Second
)

type wsEndpoint struct {
	path      string
	listener  net.Listener
	server    *http.Server
	upgrader  websocket.Upgrader
	requests  chan *Exchange
	done      chan struct{}
	closeOnce sync.Once

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
	wg    sync.WaitGroup
}

func listenWebSocket(ctx context.Context, address string) (*wsEndpoint, error) {
	errFactory := errors.New()

	u, err := url.Parse(address)
	if err != nil || u.Host == "" {
		return nil, errFactory.WithData(ErrInvalidAddress, address)
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", u.Host)
	if err != nil {
		return nil, errFactory.WithData(ErrBindFailed, struct {
			Address string
			Error   string
		}{
			Address: address,
			Error:   err.Error(),
		})
	}

	e := &wsEndpoint{
		path:     path,
		listener: ln,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		requests: make(chan *Exchange),
		done:     make(chan struct{}),
		conns:    make(map[*websocket.Conn]struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, e.handle)

	e.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: wsReadHeaderTimeout,
		ErrorLog:          log.New(httpLogWriter{}, "", 0),
	}

	go func() {
		if err := e.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Str("address", address).Msg("WebSocket query endpoint stopped")
		}
	}()

	logger.Debug().Str("address", e.Addr()).Msg("WebSocket query endpoint bound")

	return e, nil
}

func (e *wsEndpoint) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := e.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("WebSocket upgrade rejected")
		return
	}

	if !e.track(conn) {
		conn.Close()
		return
	}
	defer e.untrack(conn)

	conn.SetReadLimit(protocol.MaxFrameSize)

	for {
		messageType, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("Inspector connection lost")
			}
			return
		}

		ex := newExchange(frame)
		select {
		case e.requests <- ex:
		case <-e.done:
			return
		}

		reply, ok := ex.wait(e.done)
		if !ok {
			return
		}

		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteMessage(messageType, reply); err != nil {
			logger.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("Inspector reply failed")
			return
		}
	}
}

func (e *wsEndpoint) track(conn *websocket.Conn) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	select {
	case <-e.done:
		return false
	default:
	}

	e.conns[conn] = struct{}{}
	e.wg.Add(1)
	return true
}

func (e *wsEndpoint) untrack(conn *websocket.Conn) {
	e.mu.Lock()
	delete(e.conns, conn)
	e.mu.Unlock()

	conn.Close()
	e.wg.Done()
}

func (e *wsEndpoint) Requests() <-chan *Exchange {
	return e.requests
}

func (e *wsEndpoint) Addr() string {
	return "ws://" + e.listener.Addr().String() + e.path
}

func (e *wsEndpoint) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.mu.Lock()
		close(e.done)
		for conn := range e.conns {
			conn.Close()
		}
		e.mu.Unlock()

		if cerr := e.server.Close(); cerr != nil {
			err = errors.New().Wrap(ErrCloseFailed, cerr)
		}
		e.wg.Wait()
	})
	return err
}

// Routes net/http server errors to the structured logger
type httpLogWriter struct{}

func (httpLogWriter) Write(p []byte) (int, error) {
	if msg := strings.TrimSpace(string(p)); msg != "" {
		logger.Warn().Str("component", "websocket").Msg(msg)
	}
	return len(p), nil
}
