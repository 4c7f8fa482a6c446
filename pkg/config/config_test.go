package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Name  string `yaml:"name"`
	Port  int    `yaml:"port"`
	valid bool
}

func (s *sample) Validate() error {
	if s.Port == 0 {
		return errors.New("port is required")
	}
	s.valid = true
	return nil
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("PERTHRO_TEST_NAME", "archive")
	path := writeConfig(t, "name: ${PERTHRO_TEST_NAME}\nport: 8080\n")

	var cfg sample
	if err := Load(path, &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Name != "archive" || cfg.Port != 8080 || !cfg.valid {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "port: 8080\nlegacy: ./old\n")
	var cfg sample
	if err := Load(path, &cfg); err == nil {
		t.Fatal("unknown key should fail")
	}
}

func TestLoad_ValidationError(t *testing.T) {
	path := writeConfig(t, "name: x\n")
	var cfg sample
	err := Load(path, &cfg)
	if err == nil || !strings.Contains(err.Error(), "port is required") {
		t.Errorf("err = %v, want validation failure", err)
	}
}

func TestLoad_EmptyFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "")
	cfg := sample{Port: 9000}
	if err := Load(path, &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 9000 {
		t.Errorf("port = %d, want default 9000", cfg.Port)
	}
}

func TestLoadWithDefaults(t *testing.T) {
	fallback := writeConfig(t, "port: 7000\n")
	var cfg sample
	if err := LoadWithDefaults(filepath.Join(t.TempDir(), "missing.yaml"), fallback, &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 7000 {
		t.Errorf("port = %d, want 7000 from default file", cfg.Port)
	}

	if err := LoadWithDefaults(filepath.Join(t.TempDir(), "missing.yaml"), "", &cfg); err == nil {
		t.Error("missing file without default should fail")
	}
}
