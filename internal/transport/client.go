package transport

import (
	"apollocfg/internal/types"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

// maxBodyBytes caps what is read from the config service; namespaces are small.
const maxBodyBytes = 16 << 20

// Client is the ports.Getter used against the config service. Every request is signed when a secret is set.
// Timeouts are applied per request so the same client serves short config fetches and long polls.
type Client struct {
	http   *http.Client
	appID  string
	secret string
}

func NewClient(appID, secret string) *Client {
	return NewClientWithHTTP(appID, secret, &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()})
}

func NewClientWithHTTP(appID, secret string, hc *http.Client) *Client {
	return &Client{http: hc, appID: appID, secret: secret}
}

func (c *Client) Get(ctx context.Context, rawURL string, timeout time.Duration) (*types.HTTPResponse, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &types.TransportError{Kind: types.KindConnection, URL: rawURL, Err: err}
	}
	headers, err := SignHeaders(rawURL, c.appID, c.secret)
	if err != nil {
		return nil, &types.TransportError{Kind: types.KindConnection, URL: rawURL, Err: err}
	}
	for k, vs := range headers {
		req.Header[k] = vs
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classify(rawURL, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, classify(rawURL, err)
	}
	log.WithFields(log.Fields{
		"url":    rawURL,
		"status": resp.StatusCode,
		"bytes":  len(body),
	}).Debug("config service responded")
	return &types.HTTPResponse{StatusCode: resp.StatusCode, Body: body}, nil
}

// StatusError wraps a completed response whose status the caller does not accept.
func StatusError(rawURL string, resp *types.HTTPResponse) error {
	return &types.TransportError{Kind: types.KindServer, URL: rawURL, StatusCode: resp.StatusCode}
}

func classify(rawURL string, err error) *types.TransportError {
	kind := types.KindConnection
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		kind = types.KindTimeout
	}
	return &types.TransportError{Kind: kind, URL: rawURL, Err: err}
}
