package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// ErrTokenRejected is returned when the broker answers the credential
// exchange with a non-2xx status.
var ErrTokenRejected = errors.New("token request rejected")

// Device is one entry of the broker's device list.
type Device struct {
	UID    string `json:"uid"`
	Name   string `json:"name"`
	Online bool   `json:"online"`
}

// HTTPClient makes REST calls to the broker.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPClient creates a client targeting the given base URL (e.g.
// "http://127.0.0.1:8080"). The token, when set, is sent as a bearer token.
// Requests carry no timeout of their own: callers cancel through the context.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{},
	}
}

type tokenRequest struct {
	Device   string `json:"device"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// NegotiateToken exchanges credentials for a one-time socket token via
// POST /ws/ssh.
func (c *HTTPClient) NegotiateToken(ctx context.Context, device, username, password string) (string, error) {
	var out tokenResponse
	body := tokenRequest{Device: device, Username: username, Password: password}
	if err := c.post(ctx, "/ws/ssh", body, &out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", fmt.Errorf("%w: empty token", ErrTokenRejected)
	}
	return out.Token, nil
}

// ListDevices fetches /api/devices.
func (c *HTTPClient) ListDevices(ctx context.Context) ([]Device, error) {
	var out []Device
	if err := c.get(ctx, "/api/devices", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SocketURL builds the terminal socket address for a negotiated token and
// the emulator's current size.
func (c *HTTPClient) SocketURL(token string, cols, rows int) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse broker url: %w", err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws", "":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported broker scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/ssh"
	q := url.Values{}
	q.Set("token", token)
	q.Set("cols", strconv.Itoa(cols))
	q.Set("rows", strconv.Itoa(rows))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *HTTPClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	c.setAuth(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s: %d %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *HTTPClient) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: POST %s: %d %s", ErrTokenRejected, path, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *HTTPClient) setAuth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
