package config

import (
	"errors"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override the YAML file. The CMS credentials are
// usually injected by the hosting platform rather than written to disk.
const (
	EnvRepository  = "PRISMIC_REPO_NAME"
	EnvAccessToken = "PRISMIC_ACCESS_TOKEN"
	EnvListen      = "WHATSNEXT_LISTEN"
	EnvBaseURL     = "WHATSNEXT_BASE_URL"
)

// ErrMissingRepository is returned by Validate when no CMS repository is set.
var ErrMissingRepository = errors.New("missing PRISMIC_REPO_NAME: set prismic.repository in the config file or the environment")

// PrismicConfig describes the upstream content repository.
type PrismicConfig struct {
	// Repository is the Prismic repository name (required).
	Repository string `yaml:"repository" json:"repository"`
	// AccessToken is optional; private repositories need it.
	AccessToken string `yaml:"access_token,omitempty" json:"-"`
	// Endpoint overrides https://{repository}.cdn.prismic.io/api/v2.
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	// PageSize is the number of documents requested per search page (max 100).
	PageSize int `yaml:"page_size" json:"page_size"`
	// Timeout bounds each outbound request.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// FieldsConfig lists the candidate field names probed, in order, for the
// event start and end values. Upstream content types get edited without
// notice, so these are configuration rather than code.
type FieldsConfig struct {
	Start []string `yaml:"start" json:"start"`
	End   []string `yaml:"end" json:"end"`
}

// ServerConfig holds net/http server timeouts.
type ServerConfig struct {
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
}

// SiteConfig holds the copy shown in the page chrome.
type SiteConfig struct {
	Title   string `yaml:"title" json:"title"`
	Tagline string `yaml:"tagline" json:"tagline"`
	// BaseURL is the public origin used for absolute links in the iCalendar
	// feed, e.g. "https://whatsnext.example". When empty the request's Host
	// is used.
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used to place events on calendar days
	// (e.g. "America/New_York").
	Timezone string `yaml:"timezone" json:"timezone"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	Prismic PrismicConfig `yaml:"prismic" json:"prismic"`
	Fields  FieldsConfig  `yaml:"fields" json:"fields"`
	Server  ServerConfig  `yaml:"server" json:"server"`
	Site    SiteConfig    `yaml:"site" json:"site"`

	// HorizonDays bounds recurring event expansion (today + HorizonDays).
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`

	// MaxOccurrences caps the occurrences produced for one recurring event.
	MaxOccurrences int `yaml:"max_occurrences" json:"max_occurrences"`
}

// DefaultStartFields is the default probe order for the event start value.
func DefaultStartFields() []string {
	return []string{"start_datetime", "start_date", "date", "start", "datetime", "event_date"}
}

// DefaultEndFields is the default probe order for the event end value.
func DefaultEndFields() []string {
	return []string{"end_datetime", "end_date", "end", "end_time", "event_end"}
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:   "127.0.0.1:8080",
		Timezone: "America/New_York",
		LogLevel: "info",
		Prismic: PrismicConfig{
			PageSize: 100,
			Timeout:  15 * time.Second,
		},
		Fields: FieldsConfig{
			Start: DefaultStartFields(),
			End:   DefaultEndFields(),
		},
		Server: ServerConfig{
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Site: SiteConfig{
			Title:   "What's Next Lancaster",
			Tagline: "A shared calendar for local events, specials, and pop-ups in Lancaster, PA.",
		},
		HorizonDays:    90,
		MaxOccurrences: 200,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.Prismic.PageSize <= 0 || c.Prismic.PageSize > 100 {
		c.Prismic.PageSize = def.Prismic.PageSize
	}
	if c.Prismic.Timeout <= 0 {
		c.Prismic.Timeout = def.Prismic.Timeout
	}
	c.Fields.Start = compact(c.Fields.Start)
	if len(c.Fields.Start) == 0 {
		c.Fields.Start = def.Fields.Start
	}
	c.Fields.End = compact(c.Fields.End)
	if len(c.Fields.End) == 0 {
		c.Fields.End = def.Fields.End
	}
	if c.Server.ReadTimeout <= 0 {
		c.Server.ReadTimeout = def.Server.ReadTimeout
	}
	if c.Server.WriteTimeout <= 0 {
		c.Server.WriteTimeout = def.Server.WriteTimeout
	}
	if c.Server.IdleTimeout <= 0 {
		c.Server.IdleTimeout = def.Server.IdleTimeout
	}
	if c.Site.Title == "" {
		c.Site.Title = def.Site.Title
	}
	if c.Site.Tagline == "" {
		c.Site.Tagline = def.Site.Tagline
	}
	c.Site.BaseURL = strings.TrimRight(strings.TrimSpace(c.Site.BaseURL), "/")
	if c.HorizonDays <= 0 {
		c.HorizonDays = def.HorizonDays
	}
	if c.MaxOccurrences <= 0 {
		c.MaxOccurrences = def.MaxOccurrences
	}
}

// ApplyEnv overrides file values with the process environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := strings.TrimSpace(getenv(EnvRepository)); v != "" {
		c.Prismic.Repository = v
	}
	if v := strings.TrimSpace(getenv(EnvAccessToken)); v != "" {
		c.Prismic.AccessToken = v
	}
	if v := strings.TrimSpace(getenv(EnvListen)); v != "" {
		c.Listen = v
	}
	if v := strings.TrimSpace(getenv(EnvBaseURL)); v != "" {
		c.Site.BaseURL = strings.TrimRight(v, "/")
	}
}

// Validate reports configuration that makes the service unusable.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Prismic.Repository) == "" {
		return ErrMissingRepository
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return errors.New("invalid timezone " + c.Timezone + ": " + err.Error())
	}
	if c.Site.BaseURL != "" {
		u, err := url.Parse(c.Site.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errors.New("invalid site.base_url " + c.Site.BaseURL + ": want an absolute http(s) URL")
		}
	}
	return nil
}

// Location resolves Timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
//
// Environment overrides are applied by the caller (ApplyEnv) so that they
// never get written back to disk.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".whatsnext-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}
