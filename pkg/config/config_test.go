package config

import (
	"os"
	"path/filepath"
	"testing"
)

type appConfig struct {
	Addr    string `split_words:"true" default:":8080"`
	APIKey  string `split_words:"true"`
	Debug   bool   `split_words:"true" default:"false"`
	Retries int    `split_words:"true" default:"3"`
}

func TestNewReadsEnvironment(t *testing.T) {
	t.Setenv("APP_ADDR", ":9090")
	t.Setenv("APP_API_KEY", "secret")
	t.Setenv("APP_DEBUG", "true")

	conf, err := New[appConfig]("APP")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if conf.Addr != ":9090" || conf.APIKey != "secret" || !conf.Debug {
		t.Fatalf("unexpected config: %+v", conf)
	}
	if conf.Retries != 3 {
		t.Fatalf("expected default retries 3, got %d", conf.Retries)
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	os.Unsetenv("APP_ADDR")
	os.Unsetenv("APP_DEBUG")

	conf, err := New[appConfig]("APP")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if conf.Addr != ":8080" {
		t.Fatalf("expected default addr, got %q", conf.Addr)
	}
}

func TestExportFilePromotesKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server_addr: \":7070\"\nlog_debug: true\n"), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("SERVER_ADDR", "")
	os.Unsetenv("SERVER_ADDR")
	t.Setenv("LOG_DEBUG", "false")

	if err := exportFile(path); err != nil {
		t.Fatalf("exportFile() error = %v", err)
	}

	if got := os.Getenv("SERVER_ADDR"); got != ":7070" {
		t.Fatalf("expected file value promoted, got %q", got)
	}
	if got := os.Getenv("LOG_DEBUG"); got != "false" {
		t.Fatalf("environment value must win over the file, got %q", got)
	}
}
