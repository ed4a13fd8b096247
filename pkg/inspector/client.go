// Package inspector is a client for a running reporter. It issues the
// query commands and turns error responses into ServerError values.
package inspector

import (
	"context"
	"sync"

	"codeberg.org/mutker/anemone/internal/errors"
	"codeberg.org/mutker/anemone/internal/logger"
	"codeberg.org/mutker/anemone/pkg/protocol"
)

// Client is safe for concurrent use; calls are serialised because the
// transports carry one outstanding request at a time. A failed round trip
// closes the client and later calls return ErrClosed.
type Client struct {
	address string

	mu        sync.Mutex
	transport transport
	closed    bool
}

// Dial connects to a reporter at address (tcp://, ipc:// or ws://)
func Dial(ctx context.Context, address string) (*Client, error) {
	t, err := dialTransport(ctx, address)
	if err != nil {
		return nil, err
	}

	logger.Debug().Str("address", address).Msg("Inspector connected")

	return &Client{address: address, transport: t}, nil
}

func (c *Client) Address() string {
	return c.address
}

// Raw sends an arbitrary request tuple and returns the decoded response,
// error responses included.
func (c *Client) Raw(ctx context.Context, args ...any) (*protocol.Response, error) {
	errFactory := errors.New()

	frame, err := protocol.EncodeRequest(protocol.NewRequest(args...))
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, errFactory.New(ErrClosed)
	}

	reply, err := c.transport.roundTrip(ctx, frame)
	if err != nil {
		// Neither transport can carry another request after a failed one
		c.closed = true
		if cerr := c.transport.close(); cerr != nil {
			logger.Debug().Err(cerr).Str("address", c.address).Msg("Inspector transport close failed")
		}
		logger.Debug().Err(err).Str("address", c.address).Msg("Inspector disconnected")

		if errors.HasCode(err, errors.ErrTimeout) {
			return nil, err
		}
		return nil, errFactory.Wrap(ErrRequest, err)
	}

	return protocol.DecodeResponse(reply)
}

func (c *Client) call(ctx context.Context, want protocol.ResponseKind, args ...any) (*protocol.Response, error) {
	resp, err := c.Raw(ctx, args...)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, &ServerError{Message: resp.Error}
	}
	if resp.Kind != want {
		return nil, errors.New().WithData(ErrUnexpectedResponse, resp.Kind)
	}
	return resp, nil
}

func (c *Client) AnalysisInfo(ctx context.Context) (protocol.AnalysisInfo, error) {
	resp, err := c.call(ctx, protocol.KindAnalysisInfo, protocol.CmdGetAnalysisInfo)
	if err != nil {
		return protocol.AnalysisInfo{}, err
	}
	return *resp.Info, nil
}

// Reports lists the session's reports in creation order
func (c *Client) Reports(ctx context.Context) ([]protocol.ReportEntry, error) {
	resp, err := c.call(ctx, protocol.KindReports, protocol.CmdGetReports)
	if err != nil {
		return nil, err
	}
	return resp.Reports, nil
}

// Report returns the points of name from index start onwards
func (c *Client) Report(ctx context.Context, name string, start int) (protocol.Series, error) {
	resp, err := c.call(ctx, protocol.KindReport, protocol.CmdGetReport, name, start)
	if err != nil {
		return protocol.Series{}, err
	}
	return *resp.Series, nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.transport.close()
}
