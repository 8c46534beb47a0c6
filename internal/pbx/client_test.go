package pbx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"pbx-bridge/internal/config"
)

type staticToken string

func (s staticToken) EnsureToken(ctx context.Context) (string, error) {
	return string(s), nil
}

func clientFor(t *testing.T, handler http.HandlerFunc, mutate func(*config.UpstreamConfig)) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := upstreamCfg(srv.URL, "apikey")
	if mutate != nil {
		mutate(&cfg)
	}
	return NewClient(cfg, staticToken("tok-1"), srv.Client()), srv
}

func TestClientGetBearerPlacement(t *testing.T) {
	t.Parallel()

	c, _ := clientFor(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/openapi/v1.0/cdr/list" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("Authorization = %q", got)
		}
		if r.URL.Query().Get("page") != "2" {
			t.Errorf("page param = %q", r.URL.Query().Get("page"))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"errcode": 0, "data": []any{}})
	}, nil)

	payload, err := c.Get(context.Background(), "/cdr/list", map[string]string{"page": "2"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, ok := payload["data"]; !ok {
		t.Fatal("payload lost data key")
	}
}

func TestClientTokenPlacements(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.UpstreamConfig)
		check  func(t *testing.T, r *http.Request)
	}{
		{
			name: "custom header",
			mutate: func(cfg *config.UpstreamConfig) {
				cfg.Auth.Placement = "header"
				cfg.Auth.HeaderName = "X-PBX-Token"
			},
			check: func(t *testing.T, r *http.Request) {
				if r.Header.Get("X-PBX-Token") != "tok-1" {
					t.Errorf("custom header missing")
				}
				if r.Header.Get("Authorization") != "" {
					t.Errorf("unexpected Authorization header")
				}
			},
		},
		{
			name: "query parameter",
			mutate: func(cfg *config.UpstreamConfig) {
				cfg.Auth.Placement = "query"
				cfg.Auth.QueryKey = "access_token"
			},
			check: func(t *testing.T, r *http.Request) {
				if r.URL.Query().Get("access_token") != "tok-1" {
					t.Errorf("token missing from query")
				}
			},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c, _ := clientFor(t, func(w http.ResponseWriter, r *http.Request) {
				tc.check(t, r)
				_ = json.NewEncoder(w).Encode(map[string]any{"errcode": 0})
			}, tc.mutate)

			if _, err := c.Get(context.Background(), "/extension/list", nil); err != nil {
				t.Fatalf("Get: %v", err)
			}
		})
	}
}

func TestClientRequestErrorOnStatus(t *testing.T) {
	t.Parallel()

	c, _ := clientFor(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}, nil)

	_, err := c.Get(context.Background(), "/cdr/list", nil)
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected *RequestError, got %v", err)
	}
	if reqErr.Status != http.StatusBadGateway {
		t.Fatalf("status = %d", reqErr.Status)
	}
}

func TestClientRequestErrorOnApplicationCode(t *testing.T) {
	t.Parallel()

	c, _ := clientFor(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"errcode": 20001, "errmsg": "no permission"})
	}, nil)

	_, err := c.Get(context.Background(), "/cdr/list", nil)
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected *RequestError, got %v", err)
	}
	if reqErr.Code != "20001" {
		t.Fatalf("code = %q", reqErr.Code)
	}
}

func TestClientEmptyAndNonJSONBodies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"plain text body", "OK"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c, _ := clientFor(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tc.body))
			}, nil)

			payload, err := c.Get(context.Background(), "/cdr/list", nil)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if len(payload) != 0 {
				t.Fatalf("payload = %v, want empty map", payload)
			}
		})
	}
}

func TestClientTransportError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewClient(upstreamCfg(srv.URL, "apikey"), staticToken("tok-1"), nil)
	_, err := c.Get(context.Background(), "/cdr/list", nil)
	var tErr *TransportError
	if !errors.As(err, &tErr) {
		t.Fatalf("expected *TransportError, got %v", err)
	}
}

func TestClientAbsoluteURLPassthrough(t *testing.T) {
	t.Parallel()

	c := NewClient(upstreamCfg("http://pbx.local", "apikey"), staticToken("t"), nil)
	got := c.buildURL("https://cdn.example.com/rec/1.wav")
	if got != "https://cdn.example.com/rec/1.wav" {
		t.Fatalf("buildURL rewrote absolute URL: %q", got)
	}
	if got := c.buildURL("extension/list"); got != "http://pbx.local/openapi/v1.0/extension/list" {
		t.Fatalf("buildURL = %q", got)
	}
}
