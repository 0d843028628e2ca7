// Package indexer answers whether a submitted transaction has been picked up
// by an external transaction indexer.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultBaseURL = "https://api.onceupon.gg/v1/transactions"

var ErrTxFailed = errors.New("transaction failed")

// Poller reports whether txHash is indexed. (false, nil) means not yet.
type Poller interface {
	Indexed(ctx context.Context, txHash string) (bool, error)
}

// Client polls an HTTP indexer: GET {baseURL}/{txHash}, 200 means indexed.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) Indexed(ctx context.Context, txHash string) (bool, error) {
	if txHash == "" {
		return false, fmt.Errorf("empty transaction hash")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+url.PathEscape(txHash), nil)
	if err != nil {
		return false, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("poll indexer: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	return resp.StatusCode == http.StatusOK, nil
}
