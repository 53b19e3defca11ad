package internal

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/starford/quire/internal/permalink"
	"github.com/starford/quire/internal/storage"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

var extPattern = regexp.MustCompile(`^\.[A-Za-z0-9]+$`)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Site    SiteConfig        `yaml:"site"`
	SQLite  SQLiteConfig      `yaml:"sqlite"`
	Auth    AuthConfig        `yaml:"auth"`
	Metrics MetricsConfig     `yaml:"metrics"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := c.Site.Validate(); err != nil {
		return fmt.Errorf("site: %w", err)
	}
	if err := c.SQLite.Validate(); err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SiteConfig describes the content collection and where builds go.
//
// Layouts maps every layout name documents may use to its template. The
// template text is opaque here and handed through to the renderer; an empty
// template just declares the name.
type SiteConfig struct {
	ContentDir     string            `yaml:"content_dir"`
	OutputDir      string            `yaml:"output_dir"`
	BaseURL        string            `yaml:"base_url"`
	Permalink      string            `yaml:"permalink"`
	Layouts        map[string]string `yaml:"layouts"`
	DefaultLayout  string            `yaml:"default_layout"`
	Strict         bool              `yaml:"strict"`
	Extensions     []string          `yaml:"extensions"`
	RenderMarkdown bool              `yaml:"render_markdown"`
}

// Validate validates the site configuration.
func (c *SiteConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.ContentDir, validation.Required),
		validation.Field(&c.OutputDir, validation.Required),
		validation.Field(&c.Layouts, validation.Required),
		validation.Field(&c.Extensions, validation.Each(validation.Required, validation.Match(extPattern))),
	); err != nil {
		return err
	}
	if err := separateDirs(c.ContentDir, c.OutputDir); err != nil {
		return err
	}
	if c.DefaultLayout != "" {
		if _, ok := c.Layouts[c.DefaultLayout]; !ok {
			return fmt.Errorf("default_layout %q is not a configured layout", c.DefaultLayout)
		}
	}
	return nil
}

// UnmarshalYAML replaces the default layout set instead of merging into it,
// so a config file lists exactly the layouts the site has.
func (c *SiteConfig) UnmarshalYAML(n *yaml.Node) error {
	type plain SiteConfig
	tmp := plain(*c)
	if n.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(n.Content); i += 2 {
			if n.Content[i].Value == "layouts" {
				tmp.Layouts = nil
			}
		}
	}
	if err := n.Decode(&tmp); err != nil {
		return err
	}
	*c = SiteConfig(tmp)
	return nil
}

// separateDirs rejects content and output directories that are the same or
// nested in either direction.
func separateDirs(content, output string) error {
	ca, err := filepath.Abs(content)
	if err != nil {
		return fmt.Errorf("content_dir: %w", err)
	}
	oa, err := filepath.Abs(output)
	if err != nil {
		return fmt.Errorf("output_dir: %w", err)
	}
	switch {
	case ca == oa:
		return fmt.Errorf("output_dir: must differ from content_dir")
	case within(ca, oa):
		return fmt.Errorf("output_dir: must not be inside content_dir")
	case within(oa, ca):
		return fmt.Errorf("output_dir: must not contain content_dir")
	}
	return nil
}

// within reports whether p lies strictly below dir. Both are absolute.
func within(dir, p string) bool {
	rel, err := filepath.Rel(dir, p)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration for the HTTP API.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Site: SiteConfig{
			ContentDir:    "./_posts",
			OutputDir:     "./_site",
			Permalink:     permalink.DefaultPattern,
			Layouts:       map[string]string{"default": "", "post": ""},
			DefaultLayout: "default",
			Extensions:    slices.Clone(storage.DefaultExtensions),
		},
		SQLite: SQLiteConfig{
			Path: "./quire.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}
