package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Secret is a config value that must never appear in logs or encoded
// output. The decision that a field is secret-valued is made here, at
// schema definition time.
type Secret string

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "[redacted]"
}

func (s Secret) MarshalJSON() ([]byte, error) {
	return []byte(`"[redacted]"`), nil
}

func (s Secret) MarshalYAML() (interface{}, error) {
	return "[redacted]", nil
}

// Value returns the raw secret for use in requests.
func (s Secret) Value() string { return string(s) }

type APIKey struct {
	Name string `yaml:"name"`
	Key  Secret `yaml:"key"`
	Role string `yaml:"role"`
}

// AuthConfig selects how a token is obtained and where it is placed on
// data requests. The upstream contract varies across firmware builds,
// so both are configuration, not code.
//
// envconfig resolves a nested field by its bare tag (PBX_CLIENT_SECRET)
// or by the full prefixed path; top-level fields take the PBXBRIDGE_
// prefix.
type AuthConfig struct {
	// Mode: "openapi" (JSON get_token exchange), "oauth2"
	// (client_credentials form exchange) or "apikey" (static key, no
	// exchange).
	Mode         string `yaml:"mode" envconfig:"PBX_AUTH_MODE"`
	ClientID     string `yaml:"client_id" envconfig:"PBX_CLIENT_ID"`
	ClientSecret Secret `yaml:"client_secret" envconfig:"PBX_CLIENT_SECRET"`
	TokenURL     string `yaml:"token_url" envconfig:"PBX_TOKEN_URL"`
	RefreshURL   string `yaml:"refresh_url" envconfig:"PBX_REFRESH_URL"`

	// Placement: "bearer", "header" or "query".
	Placement  string `yaml:"placement" envconfig:"PBX_AUTH_PLACEMENT"`
	HeaderName string `yaml:"header_name" envconfig:"PBX_AUTH_HEADER"`
	QueryKey   string `yaml:"query_key" envconfig:"PBX_AUTH_QUERY_KEY"`
}

type UpstreamConfig struct {
	BaseURL        string `yaml:"base_url" envconfig:"PBX_BASE_URL"`
	APIBasePath    string `yaml:"api_base_path" envconfig:"PBX_API_BASE_PATH"`
	RequestTimeout int    `yaml:"request_timeout" envconfig:"PBX_REQUEST_TIMEOUT"`

	ExtensionsEndpoint string `yaml:"extensions_endpoint"`
	CallLogsEndpoint   string `yaml:"call_logs_endpoint"`
	RecordingEndpoint  string `yaml:"recording_endpoint"`

	Auth AuthConfig `yaml:"auth"`
}

type SyncConfig struct {
	Enabled         bool `yaml:"enabled" envconfig:"SYNC_ENABLED"`
	SyncExtensions  bool `yaml:"sync_extensions" envconfig:"SYNC_EXTENSIONS"`
	IntervalSeconds int  `yaml:"interval_seconds" envconfig:"SYNC_INTERVAL_SECONDS"`
	PageSize        int  `yaml:"page_size" envconfig:"SYNC_PAGE_SIZE"`
	LookbackHours   int  `yaml:"lookback_hours" envconfig:"SYNC_LOOKBACK_HOURS"`
}

type PolicyConfig struct {
	IgnoreInternalCalls bool `yaml:"ignore_internal_calls"`
	AutoLink            bool `yaml:"auto_link"`
	CreateLead          bool `yaml:"create_lead"`

	// Legacy names kept from earlier deployments; resolved into the
	// canonical fields above at load time and never read elsewhere.
	SkipInternal         *bool `yaml:"skip_internal"`
	AutoLinkCRM          *bool `yaml:"auto_link_crm"`
	CreateLeadIfNotFound *bool `yaml:"create_lead_if_not_found"`
}

type Config struct {
	ListenAddr         string `yaml:"listen_addr" envconfig:"LISTEN_ADDR"`
	DBDSN              string `yaml:"db_dsn" envconfig:"DB_DSN"`
	DefaultCountryCode string `yaml:"default_country_code" envconfig:"DEFAULT_COUNTRY_CODE"`

	// Legacy spelling of default_country_code.
	PhoneCountryCode string `yaml:"phone_country_code"`

	WebhookSecret Secret   `yaml:"webhook_secret" envconfig:"WEBHOOK_SECRET"`
	APIKeys       []APIKey `yaml:"api_keys"`

	Upstream UpstreamConfig `yaml:"upstream"`
	Sync     SyncConfig     `yaml:"sync"`
	Policy   PolicyConfig   `yaml:"policy"`
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}

	if err := envconfig.Process("pbxbridge", &cfg); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	cfg.DefaultCountryCode = strings.TrimSpace(cfg.DefaultCountryCode)
	if cfg.DefaultCountryCode == "" {
		cfg.DefaultCountryCode = strings.TrimSpace(cfg.PhoneCountryCode)
	}
	if cfg.DefaultCountryCode == "" {
		cfg.DefaultCountryCode = "+966"
	}
	// Canonical +<digits> form; the internal-extension check strips
	// this exact prefix off normalized numbers.
	if !strings.HasPrefix(cfg.DefaultCountryCode, "+") {
		cfg.DefaultCountryCode = "+" + cfg.DefaultCountryCode
	}

	u := &cfg.Upstream
	u.BaseURL = strings.TrimRight(strings.TrimSpace(u.BaseURL), "/")
	if u.APIBasePath == "" {
		u.APIBasePath = "/openapi/v1.0"
	}
	if !strings.HasPrefix(u.APIBasePath, "/") {
		u.APIBasePath = "/" + u.APIBasePath
	}
	if u.RequestTimeout <= 0 {
		u.RequestTimeout = 20
	}
	if u.ExtensionsEndpoint == "" {
		u.ExtensionsEndpoint = "/extension/list"
	}
	if u.CallLogsEndpoint == "" {
		u.CallLogsEndpoint = "/cdr/list"
	}
	if u.RecordingEndpoint == "" {
		u.RecordingEndpoint = "/recording/get"
	}

	a := &u.Auth
	if a.Mode == "" {
		a.Mode = "openapi"
	}
	if a.Placement == "" {
		a.Placement = "bearer"
	}
	if a.HeaderName == "" {
		a.HeaderName = "X-API-Token"
	}
	if a.QueryKey == "" {
		a.QueryKey = "access_token"
	}

	s := &cfg.Sync
	if s.PageSize <= 0 {
		s.PageSize = 100
	}
	if s.LookbackHours <= 0 {
		s.LookbackHours = 24
	}

	// Fold legacy policy spellings into the canonical schema. A legacy
	// field only applies when the canonical one was not set.
	p := &cfg.Policy
	if !p.IgnoreInternalCalls && p.SkipInternal != nil {
		p.IgnoreInternalCalls = *p.SkipInternal
	}
	if !p.AutoLink && p.AutoLinkCRM != nil {
		p.AutoLink = *p.AutoLinkCRM
	}
	if !p.CreateLead && p.CreateLeadIfNotFound != nil {
		p.CreateLead = *p.CreateLeadIfNotFound
	}
	p.SkipInternal = nil
	p.AutoLinkCRM = nil
	p.CreateLeadIfNotFound = nil
}

func (cfg *Config) validate() error {
	a := cfg.Upstream.Auth
	switch a.Mode {
	case "openapi", "oauth2", "apikey":
	default:
		return fmt.Errorf("config: unknown auth mode %q", a.Mode)
	}
	switch a.Placement {
	case "bearer", "header", "query":
	default:
		return fmt.Errorf("config: unknown auth placement %q", a.Placement)
	}
	if cfg.Sync.Enabled && cfg.Upstream.BaseURL == "" {
		return fmt.Errorf("config: upstream.base_url is required when sync is enabled")
	}
	return nil
}
