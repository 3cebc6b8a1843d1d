package main

import (
	"bytes"
	"crypto/sha256"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/phpenv/manifest"
	"github.com/chazu/phpenv/modcache"
)

func loadProject(t *testing.T, content string) *manifest.Manifest {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, manifest.FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	m, err := manifest.Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestConfigCommand(t *testing.T) {
	m := loadProject(t, `
[project]
name = "shop"

[runtime]
include-paths = ["lib"]
error-reporting = "E_ALL"

[ini]
memory_limit = "64M"
`)
	var out bytes.Buffer
	if err := run(&out, m, "config", nil); err != nil {
		t.Fatal(err)
	}
	s := out.String()
	for _, want := range []string{"project:         shop", "error_reporting: 32767", filepath.Join(m.Dir, "lib"), `memory_limit = "64M"`} {
		if !strings.Contains(s, want) {
			t.Errorf("output missing %q:\n%s", want, s)
		}
	}
}

func TestCacheCommands(t *testing.T) {
	m := loadProject(t, "")
	s, err := m.OpenCache()
	if err != nil {
		t.Fatal(err)
	}
	sum := sha256.Sum256([]byte("code"))
	s.Put("a.php", sum[:], []byte("compiled"))
	s.Put("b.php", sum[:], []byte("compiled"))
	s.Close()

	var out bytes.Buffer
	if err := run(&out, m, "cache-ls", nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "a.php") || !strings.Contains(out.String(), "b.php") {
		t.Errorf("cache-ls output = %q", out.String())
	}

	out.Reset()
	if err := run(&out, m, "cache-rm", []string{"a.php"}); err != nil {
		t.Fatal(err)
	}
	if err := run(&out, m, "cache-rm", []string{"a.php"}); err != modcache.ErrNotFound {
		t.Errorf("second cache-rm err = %v", err)
	}

	out.Reset()
	if err := run(&out, m, "cache-purge", nil); err != nil {
		t.Fatal(err)
	}
	if out.String() != "purged 1 module(s)\n" {
		t.Errorf("cache-purge output = %q", out.String())
	}

	out.Reset()
	run(&out, m, "cache-ls", nil)
	if out.String() != "module cache is empty\n" {
		t.Errorf("cache-ls after purge = %q", out.String())
	}
}

func TestCacheDisabled(t *testing.T) {
	m := loadProject(t, "[cache]\nenabled = false\n")
	if err := run(&bytes.Buffer{}, m, "cache-ls", nil); err == nil {
		t.Error("expected an error when the cache is disabled")
	}
}

func TestUnknownCommand(t *testing.T) {
	m := loadProject(t, "")
	if err := run(&bytes.Buffer{}, m, "serve", nil); err == nil {
		t.Error("expected an error for an unknown command")
	}
}
