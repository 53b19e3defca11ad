package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/quire/pkg/config"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	if err := NewDefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestSiteConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*SiteConfig)
		ok     bool
	}{
		{"defaults", func(*SiteConfig) {}, true},
		{"missing content dir", func(c *SiteConfig) { c.ContentDir = "" }, false},
		{"output equals content", func(c *SiteConfig) { c.OutputDir = c.ContentDir }, false},
		{"same dir spelled differently", func(c *SiteConfig) { c.ContentDir, c.OutputDir = "./posts", "posts/" }, false},
		{"output parent of content", func(c *SiteConfig) { c.ContentDir, c.OutputDir = "./_posts", "." }, false},
		{"content parent of output", func(c *SiteConfig) { c.ContentDir, c.OutputDir = "./site", "./site/public" }, false},
		{"sibling dirs", func(c *SiteConfig) { c.ContentDir, c.OutputDir = "./site", "./site-public" }, true},
		{"no layouts", func(c *SiteConfig) { c.Layouts = nil }, false},
		{"default layout not declared", func(c *SiteConfig) { c.DefaultLayout = "gallery" }, false},
		{"empty default layout", func(c *SiteConfig) { c.DefaultLayout = "" }, true},
		{"bad extension", func(c *SiteConfig) { c.Extensions = []string{"md"} }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			site := NewDefaultConfig().Site
			tt.modify(&site)
			err := site.Validate()
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestLoadConfig_ExpandsEnv(t *testing.T) {
	t.Setenv("QUIRE_TEST_TOKEN", "s3cret")
	file := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
app:
  log_level: debug
  http:
    port: 9090
site:
  content_dir: ./posts
  output_dir: ./public
  base_url: /blog
  layouts:
    default: ""
    article: "{{ content }}"
  default_layout: article
  strict: true
sqlite:
  path: ./site.db
auth:
  mode: token
  token: ${QUIRE_TEST_TOKEN}
`
	if err := os.WriteFile(file, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := config.Load(file, cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.App.HTTP.Port != 9090 {
		t.Errorf("port = %d", cfg.App.HTTP.Port)
	}
	if cfg.Auth.Token != "s3cret" {
		t.Errorf("token = %q, want expanded env", cfg.Auth.Token)
	}
	if !cfg.Site.Strict || cfg.Site.DefaultLayout != "article" || cfg.Site.BaseURL != "/blog" {
		t.Errorf("site = %+v", cfg.Site)
	}
	if cfg.Site.Permalink == "" || len(cfg.Site.Extensions) != 3 {
		t.Errorf("unset site fields should keep defaults: %+v", cfg.Site)
	}
}

func TestLoadConfig_LayoutsReplaceDefaults(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
site:
  layouts:
    article: ""
  default_layout: article
`
	if err := os.WriteFile(file, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := config.Load(file, cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Site.Layouts) != 1 {
		t.Fatalf("layouts = %v, want only article", cfg.Site.Layouts)
	}
	if _, ok := cfg.Site.Layouts["post"]; ok {
		t.Error("default layout post should be dropped when the file lists layouts")
	}
	if cfg.Site.ContentDir != "./_posts" {
		t.Errorf("content_dir = %q, want default kept", cfg.Site.ContentDir)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("validate: %v", err)
	}
}

func TestLoadConfig_KeepsDefaultLayoutsWhenUnset(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(file, []byte("site:\n  strict: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := config.Load(file, cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := cfg.Site.Layouts["post"]; !ok || len(cfg.Site.Layouts) != 2 {
		t.Errorf("layouts = %v, want defaults", cfg.Site.Layouts)
	}
}
