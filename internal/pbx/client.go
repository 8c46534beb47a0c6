package pbx

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pbx-bridge/internal/config"
)

// TokenSource yields a currently valid access token.
type TokenSource interface {
	EnsureToken(ctx context.Context) (string, error)
}

// Client wraps authenticated GET/POST against the upstream PBX API.
// It does not retry; callers own retry policy.
type Client struct {
	cfg        config.UpstreamConfig
	tokens     TokenSource
	httpClient *http.Client
}

func NewClient(cfg config.UpstreamConfig, tokens TokenSource, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: time.Duration(cfg.RequestTimeout) * time.Second}
	}
	return &Client{cfg: cfg, tokens: tokens, httpClient: httpClient}
}

// Get performs an authenticated GET. A non-JSON or empty body decodes
// to an empty map so callers can treat "no data" uniformly.
func (c *Client) Get(ctx context.Context, path string, params map[string]string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.buildURL(path), nil)
	if err != nil {
		return nil, err
	}

	q := req.URL.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	req.URL.RawQuery = q.Encode()

	return c.do(ctx, req)
}

// Post performs an authenticated POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body map[string]any) (map[string]any, error) {
	if body == nil {
		body = map[string]any{}
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.buildURL(path), bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(ctx, req)
}

// buildURL joins base URL + API path prefix + relative path. Absolute
// URLs pass through untouched.
func (c *Client) buildURL(path string) string {
	path = strings.TrimSpace(path)
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.cfg.BaseURL + c.cfg.APIBasePath + path
}

func (c *Client) do(ctx context.Context, req *http.Request) (map[string]any, error) {
	token, err := c.tokens.EnsureToken(ctx)
	if err != nil {
		return nil, err
	}
	c.placeToken(req, token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "OpenAPI")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{URL: req.URL.String(), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{URL: req.URL.String(), Err: err}
	}

	if resp.StatusCode >= 300 {
		slog.Error("upstream request failed",
			"status", resp.StatusCode,
			"url", req.URL.String(),
			"body", truncate(string(raw), maxBodyLog))
		return nil, &RequestError{
			Status: resp.StatusCode,
			URL:    req.URL.String(),
			Body:   truncate(string(raw), maxBodyLog),
		}
	}

	payload := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			// Some firmware builds answer with plain text on success.
			return map[string]any{}, nil
		}
	}

	if code, ok := errCode(payload); ok && code != "0" {
		slog.Error("upstream application error",
			"code", code,
			"url", req.URL.String(),
			"message", stringField(payload, "errmsg"))
		return nil, &RequestError{
			Status: resp.StatusCode,
			URL:    req.URL.String(),
			Code:   code,
			Body:   stringField(payload, "errmsg"),
		}
	}

	return payload, nil
}

// placeToken attaches the token where this firmware build expects it.
func (c *Client) placeToken(req *http.Request, token string) {
	switch c.cfg.Auth.Placement {
	case "header":
		req.Header.Set(c.cfg.Auth.HeaderName, token)
	case "query":
		q := req.URL.Query()
		q.Set(c.cfg.Auth.QueryKey, token)
		req.URL.RawQuery = q.Encode()
	default:
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// FetchExtensions retrieves one page of the extension roster.
func (c *Client) FetchExtensions(ctx context.Context, page, pageSize int) (map[string]any, error) {
	return c.Get(ctx, c.cfg.ExtensionsEndpoint, map[string]string{
		"page":      strconv.Itoa(page),
		"page_size": strconv.Itoa(pageSize),
	})
}

// FetchCallLogs retrieves one page of call detail records for the
// given unix-timestamp window.
func (c *Client) FetchCallLogs(ctx context.Context, startTS, endTS int64, page, pageSize int) (map[string]any, error) {
	return c.Get(ctx, c.cfg.CallLogsEndpoint, map[string]string{
		"start_time": strconv.FormatInt(startTS, 10),
		"end_time":   strconv.FormatInt(endTS, 10),
		"page":       strconv.Itoa(page),
		"page_size":  strconv.Itoa(pageSize),
	})
}

// FetchRecordingURL asks the upstream for a download URL for one
// recording id.
func (c *Client) FetchRecordingURL(ctx context.Context, recordingID string) (string, error) {
	payload, err := c.Get(ctx, c.cfg.RecordingEndpoint, map[string]string{"id": recordingID})
	if err != nil {
		return "", err
	}
	for _, key := range []string{"download_url", "url", "recording_url", "file"} {
		if v := stringField(payload, key); v != "" {
			return v, nil
		}
	}
	if data, ok := payload["data"].(map[string]any); ok {
		for _, key := range []string{"download_url", "url", "recording_url", "file"} {
			if v := stringField(data, key); v != "" {
				return v, nil
			}
		}
	}
	return "", nil
}
