// Package neynar talks to the Neynar Farcaster API: user directory lookups
// and publishing casts.
package neynar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"

	"github.com/patiee/giftstorage/frame"
)

const DefaultBaseURL = "https://api.neynar.com"

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUnauthorized = errors.New("neynar api key rejected")

	ErrInvalidFrameAction = errors.New("frame action failed validation")
)

const maxBodyBytes = 1 << 20

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// LookupUserByUsername resolves a handle. viewerFID is passed through as
// the viewer context and may be nil.
func (c *Client) LookupUserByUsername(ctx context.Context, username string, viewerFID *big.Int) (*frame.Profile, error) {
	q := url.Values{}
	q.Set("username", username)
	if viewerFID != nil {
		q.Set("viewerFid", viewerFID.String())
	}
	return c.lookup(ctx, "/v1/farcaster/user-by-username", q)
}

func (c *Client) LookupUserByFID(ctx context.Context, fid *big.Int) (*frame.Profile, error) {
	if fid == nil || fid.Sign() <= 0 {
		return nil, fmt.Errorf("lookup fid %v: %w", fid, ErrUserNotFound)
	}
	q := url.Values{}
	q.Set("fid", fid.String())
	return c.lookup(ctx, "/v1/farcaster/user", q)
}

func (c *Client) lookup(ctx context.Context, path string, q url.Values) (*frame.Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("api_key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("neynar request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read neynar response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrUserNotFound
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("neynar API error: %d", resp.StatusCode)
	}

	return parseUser(body)
}

// parseUser reads result.user. The fid is taken from the raw JSON digits so
// it never passes through a float64.
func parseUser(body []byte) (*frame.Profile, error) {
	user := gjson.GetBytes(body, "result.user")
	if !user.Exists() {
		return nil, ErrUserNotFound
	}

	fid, ok := new(big.Int).SetString(user.Get("fid").String(), 10)
	if !ok || fid.Sign() <= 0 {
		return nil, fmt.Errorf("invalid fid %q: %w", user.Get("fid").Raw, ErrUserNotFound)
	}

	displayName := user.Get("displayName").String()
	if displayName == "" {
		displayName = user.Get("display_name").String()
	}
	avatar := user.Get("pfp.url").String()
	if avatar == "" {
		avatar = user.Get("pfp_url").String()
	}

	return &frame.Profile{
		ID:          fid,
		Handle:      user.Get("username").String(),
		DisplayName: displayName,
		AvatarURL:   avatar,
	}, nil
}

type castEmbed struct {
	URL string `json:"url"`
}

type castRequest struct {
	SignerUUID string      `json:"signer_uuid"`
	Text       string      `json:"text"`
	Embeds     []castEmbed `json:"embeds,omitempty"`
}

// PublishCast posts text as the account behind signerUUID and returns the
// new cast hash.
func (c *Client) PublishCast(ctx context.Context, signerUUID, text string, embeds ...string) (string, error) {
	payload := castRequest{SignerUUID: signerUUID, Text: text}
	for _, e := range embeds {
		payload.Embeds = append(payload.Embeds, castEmbed{URL: e})
	}

	raw, err := c.postJSON(ctx, "/v2/farcaster/cast", payload)
	if err != nil {
		return "", fmt.Errorf("publish cast: %w", err)
	}
	return gjson.GetBytes(raw, "cast.hash").String(), nil
}

// FrameAction is the verified part of a signed frame message.
type FrameAction struct {
	InteractorFID *big.Int
	// TxHash is set when the action reports a submitted transaction.
	TxHash string
}

type validateRequest struct {
	MessageBytesInHex string `json:"message_bytes_in_hex"`
}

// ValidateFrameAction checks the signed frame message (trustedData.messageBytes)
// and returns who sent it.
func (c *Client) ValidateFrameAction(ctx context.Context, messageBytes string) (*FrameAction, error) {
	if messageBytes == "" {
		return nil, ErrInvalidFrameAction
	}

	raw, err := c.postJSON(ctx, "/v2/farcaster/frame/validate", validateRequest{MessageBytesInHex: messageBytes})
	if err != nil {
		return nil, fmt.Errorf("validate frame action: %w", err)
	}

	res := gjson.ParseBytes(raw)
	if !res.Get("valid").Bool() {
		return nil, ErrInvalidFrameAction
	}

	fid, ok := new(big.Int).SetString(res.Get("action.interactor.fid").String(), 10)
	if !ok || fid.Sign() <= 0 {
		return nil, fmt.Errorf("%w: missing interactor fid", ErrInvalidFrameAction)
	}
	return &FrameAction{
		InteractorFID: fid,
		TxHash:        res.Get("action.transaction.hash").String(),
	}, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("content-type", "application/json")
	req.Header.Set("api_key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, gjson.GetBytes(raw, "message").String())
	}
	return raw, nil
}
