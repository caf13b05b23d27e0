package ws

import (
	"context"
	"io"

	"github.com/jsvoboda/webshare_downloader/internal/download"
	"github.com/jsvoboda/webshare_downloader/internal/telemetry"
)

// InstrumentedClient wraps Client and records a client operation metric and
// span around every API call. Session-state reads pass through untouched.
type InstrumentedClient struct {
	client    *Client
	telemetry *telemetry.Telemetry
}

func NewInstrumentedClient(client *Client, tel *telemetry.Telemetry) *InstrumentedClient {
	return &InstrumentedClient{client: client, telemetry: tel}
}

func (c *InstrumentedClient) LoggedIn() bool { return c.client.LoggedIn() }

func (c *InstrumentedClient) Username() string { return c.client.Username() }

func (c *InstrumentedClient) Login(ctx context.Context, username, password string) error {
	return c.telemetry.InstrumentClientOperation(ctx, "login", func(ctx context.Context) error {
		return c.client.Login(ctx, username, password)
	})
}

func (c *InstrumentedClient) Search(ctx context.Context, query string) ([]FileResult, error) {
	var results []FileResult

	err := c.telemetry.InstrumentClientOperation(ctx, "search", func(ctx context.Context) error {
		var opErr error

		results, opErr = c.client.Search(ctx, query)

		return opErr
	})
	if err != nil {
		return nil, err
	}

	return results, nil
}

func (c *InstrumentedClient) FileLink(ctx context.Context, ident string) (*download.Link, error) {
	var link *download.Link

	err := c.telemetry.InstrumentClientOperation(ctx, "file_link", func(ctx context.Context) error {
		var opErr error

		link, opErr = c.client.FileLink(ctx, ident)

		return opErr
	})
	if err != nil {
		return nil, err
	}

	return link, nil
}

// OpenFile instruments opening the stream; the returned body is read by the
// caller outside the operation span.
func (c *InstrumentedClient) OpenFile(ctx context.Context, fileURL string) (io.ReadCloser, int64, error) {
	var (
		body io.ReadCloser
		size int64
	)

	err := c.telemetry.InstrumentClientOperation(ctx, "open_file", func(ctx context.Context) error {
		var opErr error

		body, size, opErr = c.client.OpenFile(ctx, fileURL)

		return opErr
	})
	if err != nil {
		return nil, 0, err
	}

	return body, size, nil
}
