package pbx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"pbx-bridge/internal/config"
	"pbx-bridge/internal/models"
)

// tokenExpirySkew is subtracted from the stored expiry so a token is
// refreshed before in-flight request latency or clock drift can make
// the upstream see it as expired.
const tokenExpirySkew = 60 * time.Second

// CredentialStore persists the latest credential across restarts. Load
// returns nil with no error when nothing is stored yet.
type CredentialStore interface {
	Load(ctx context.Context) (*models.Credential, error)
	Save(ctx context.Context, cred *models.Credential) error
}

// TokenManager owns acquisition, caching and refresh of the upstream
// bearer credential. Concurrent callers share one in-flight exchange:
// the upstream revokes the previous token on new issue, so duplicate
// exchanges would invalidate each other.
type TokenManager struct {
	cfg        config.UpstreamConfig
	httpClient *http.Client
	store      CredentialStore
	now        func() time.Time

	group  singleflight.Group
	cached *models.Credential
	loaded bool
}

func NewTokenManager(cfg config.UpstreamConfig, store CredentialStore, httpClient *http.Client) *TokenManager {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: time.Duration(cfg.RequestTimeout) * time.Second}
	}
	return &TokenManager{
		cfg:        cfg,
		httpClient: httpClient,
		store:      store,
		now:        time.Now,
	}
}

// EnsureToken returns a currently valid access token, performing a
// credential exchange if the cached one is absent or within the skew
// margin of expiry.
func (m *TokenManager) EnsureToken(ctx context.Context) (string, error) {
	if m.cfg.Auth.Mode == "apikey" {
		return m.cfg.Auth.ClientSecret.Value(), nil
	}

	// singleflight serializes both the cache check and the exchange:
	// a caller arriving mid-refresh waits for and reuses its result.
	v, err, _ := m.group.Do("token", func() (interface{}, error) {
		if !m.loaded && m.store != nil {
			cred, err := m.store.Load(ctx)
			if err != nil {
				return nil, fmt.Errorf("load credential: %w", err)
			}
			m.cached = cred
			m.loaded = true
		}

		if m.valid(m.cached) {
			return m.cached.AccessToken, nil
		}

		cred, err := m.exchange(ctx)
		if err != nil {
			return nil, err
		}
		m.cached = cred
		if m.store != nil {
			if err := m.store.Save(ctx, cred); err != nil {
				return nil, fmt.Errorf("save credential: %w", err)
			}
		}
		return cred.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *TokenManager) valid(cred *models.Credential) bool {
	if cred == nil || cred.AccessToken == "" || cred.ExpiresAt.IsZero() {
		return false
	}
	return m.now().Before(cred.ExpiresAt.Add(-tokenExpirySkew))
}

// exchange obtains a new credential, preferring a refresh when a
// usable refresh token is cached and falling back to a fresh exchange.
func (m *TokenManager) exchange(ctx context.Context) (*models.Credential, error) {
	if m.cached != nil && m.cached.RefreshToken != "" {
		cred, err := m.refresh(ctx, m.cached.RefreshToken)
		if err == nil {
			return cred, nil
		}
		slog.Warn("token refresh failed, requesting new token", "error", err)
	}

	switch m.cfg.Auth.Mode {
	case "oauth2":
		return m.exchangeOAuth2(ctx)
	default:
		return m.exchangeOpenAPI(ctx)
	}
}

func (m *TokenManager) tokenURL() string {
	if u := strings.TrimSpace(m.cfg.Auth.TokenURL); u != "" {
		return u
	}
	if m.cfg.Auth.Mode == "oauth2" {
		return m.cfg.BaseURL + m.cfg.APIBasePath + "/oauth2/token"
	}
	return m.cfg.BaseURL + m.cfg.APIBasePath + "/get_token"
}

func (m *TokenManager) refreshURL() string {
	if u := strings.TrimSpace(m.cfg.Auth.RefreshURL); u != "" {
		return u
	}
	return m.cfg.BaseURL + m.cfg.APIBasePath + "/refresh_token"
}

// exchangeOpenAPI is the appliance-firmware contract: a JSON body with
// the client id/secret as username/password and a mandatory
// User-Agent: OpenAPI header. Expiry arrives as
// access_token_expire_time seconds (default 30 minutes).
func (m *TokenManager) exchangeOpenAPI(ctx context.Context) (*models.Credential, error) {
	body := map[string]string{
		"username": m.cfg.Auth.ClientID,
		"password": m.cfg.Auth.ClientSecret.Value(),
	}
	payload, err := m.postTokenJSON(ctx, m.tokenURL(), body)
	if err != nil {
		return nil, err
	}
	return m.credentialFromOpenAPI(payload)
}

func (m *TokenManager) refresh(ctx context.Context, refreshToken string) (*models.Credential, error) {
	if m.cfg.Auth.Mode == "oauth2" {
		form := url.Values{
			"grant_type":    {"refresh_token"},
			"refresh_token": {refreshToken},
			"client_id":     {m.cfg.Auth.ClientID},
			"client_secret": {m.cfg.Auth.ClientSecret.Value()},
		}
		payload, err := m.postTokenForm(ctx, m.tokenURL(), form)
		if err != nil {
			return nil, err
		}
		return m.credentialFromOAuth2(payload)
	}

	payload, err := m.postTokenJSON(ctx, m.refreshURL(), map[string]string{
		"refresh_token": refreshToken,
	})
	if err != nil {
		return nil, err
	}
	return m.credentialFromOpenAPI(payload)
}

func (m *TokenManager) exchangeOAuth2(ctx context.Context) (*models.Credential, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {m.cfg.Auth.ClientID},
		"client_secret": {m.cfg.Auth.ClientSecret.Value()},
	}
	payload, err := m.postTokenForm(ctx, m.tokenURL(), form)
	if err != nil {
		return nil, err
	}
	return m.credentialFromOAuth2(payload)
}

func (m *TokenManager) credentialFromOpenAPI(payload map[string]any) (*models.Credential, error) {
	if code, ok := errCode(payload); ok && code != "0" {
		return nil, &AuthError{Code: code, Message: stringField(payload, "errmsg")}
	}

	token := strings.TrimSpace(stringField(payload, "access_token"))
	if token == "" {
		return nil, &AuthError{Message: "token response carried no access_token"}
	}

	expiresIn := intField(payload, "access_token_expire_time")
	if expiresIn == 0 {
		expiresIn = intField(payload, "expires_in")
	}
	if expiresIn == 0 {
		expiresIn = 1800
	}
	refreshIn := intField(payload, "refresh_token_expire_time")
	if refreshIn == 0 {
		refreshIn = 86400
	}

	now := m.now()
	return &models.Credential{
		AccessToken:      token,
		RefreshToken:     strings.TrimSpace(stringField(payload, "refresh_token")),
		ExpiresAt:        now.Add(time.Duration(expiresIn) * time.Second),
		RefreshExpiresAt: now.Add(time.Duration(refreshIn) * time.Second),
		UpdatedAt:        now,
	}, nil
}

func (m *TokenManager) credentialFromOAuth2(payload map[string]any) (*models.Credential, error) {
	token := strings.TrimSpace(stringField(payload, "access_token"))
	if token == "" {
		return nil, &AuthError{Message: "token response carried no access_token"}
	}
	expiresIn := intField(payload, "expires_in")
	if expiresIn == 0 {
		expiresIn = 3600
	}

	now := m.now()
	return &models.Credential{
		AccessToken:  token,
		RefreshToken: strings.TrimSpace(stringField(payload, "refresh_token")),
		ExpiresAt:    now.Add(time.Duration(expiresIn) * time.Second),
		UpdatedAt:    now,
	}, nil
}

func (m *TokenManager) postTokenJSON(ctx context.Context, tokenURL string, body map[string]string) (map[string]any, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "OpenAPI")
	return m.doToken(req)
}

func (m *TokenManager) postTokenForm(ctx context.Context, tokenURL string, form url.Values) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	return m.doToken(req)
}

func (m *TokenManager) doToken(req *http.Request) (map[string]any, error) {
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{URL: req.URL.String(), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{URL: req.URL.String(), Err: err}
	}

	if resp.StatusCode >= 300 {
		slog.Error("token exchange rejected",
			"status", resp.StatusCode,
			"url", req.URL.String(),
			"body", truncate(string(raw), maxBodyLog))
		return nil, &AuthError{Status: resp.StatusCode, Message: truncate(string(raw), maxBodyLog)}
	}

	payload := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, &AuthError{Status: resp.StatusCode, Message: "token response is not JSON"}
		}
	}
	return payload, nil
}

// errCode reads the application error code field, tolerating both
// numeric and string encodings. ok is false when the field is absent.
func errCode(payload map[string]any) (string, bool) {
	v, present := payload["errcode"]
	if !present || v == nil {
		return "", false
	}
	switch n := v.(type) {
	case float64:
		return fmt.Sprintf("%d", int64(n)), true
	case string:
		return n, true
	default:
		return fmt.Sprintf("%v", v), true
	}
}

func stringField(payload map[string]any, key string) string {
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}

func intField(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case float64:
		return int(v)
	case string:
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return 0
}
