package config

import (
	"os"
	"path/filepath"
	"testing"
)

const linuxKey = "chromium4go.download-url.latest-trunk.linux_x64"

func TestEnvKey(t *testing.T) {
	t.Parallel()

	got := EnvKey(linuxKey)
	want := "CHROMIUM4GO_DOWNLOAD_URL_LATEST_TRUNK_LINUX_X64"
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestProperties_EmptyUsesDefault(t *testing.T) {
	t.Parallel()

	p := Empty()
	if _, ok := p.Get(linuxKey); ok {
		t.Error("expected key to be unset")
	}
	if got := p.GetOr(linuxKey, "https://default"); got != "https://default" {
		t.Errorf("expected default, got %s", got)
	}
}

func TestProperties_WithDoesNotMutate(t *testing.T) {
	t.Parallel()

	base := FromMap(map[string]string{"a": "1"})
	next := base.With("a", "2")

	if got := base.GetOr("a", ""); got != "1" {
		t.Errorf("base mutated: %s", got)
	}
	if got := next.GetOr("a", ""); got != "2" {
		t.Errorf("expected override, got %s", got)
	}
}

func TestLoad_SourcesAndPrecedence(t *testing.T) {
	dir := t.TempDir()

	dotEnv := filepath.Join(dir, ".env")
	if err := os.WriteFile(dotEnv, []byte(
		"CHROMIUM4GO_DOWNLOAD_URL_LATEST_TRUNK_LINUX_X86=https://dotenv/linux\n"+
			"chromium4go.extensions.uBlockOriginLite.downloadUrl=https://dotenv/ublock\n",
	), 0o644); err != nil {
		t.Fatal(err)
	}

	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(`
chromium4go:
  download-url:
    latest-trunk:
      windows_x64: https://yaml/win64
      linux_x86: https://yaml/linux
      linux_x64: https://yaml/linux64
`), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("CHROMIUM4GO_DOWNLOAD_URL_LATEST_TRUNK_LINUX_X64", "https://env/linux64")

	p, err := Load(LoadOptions{
		DotEnvPath: dotEnv,
		ConfigPath: configPath,
		Overrides:  map[string]string{"chromium4go.download-url.latest-trunk.windows_x86": "https://override/win"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := map[string]string{
		"chromium4go.download-url.latest-trunk.windows_x86":   "https://override/win",
		"chromium4go.download-url.latest-trunk.linux_x64":     "https://env/linux64",
		"chromium4go.download-url.latest-trunk.linux_x86":     "https://dotenv/linux",
		"chromium4go.extensions.uBlockOriginLite.downloadUrl": "https://dotenv/ublock",
		"chromium4go.download-url.latest-trunk.windows_x64":   "https://yaml/win64",
	}
	for key, want := range tests {
		if got := p.GetOr(key, ""); got != want {
			t.Errorf("%s: expected %s, got %s", key, want, got)
		}
	}
}

func TestLoad_MissingFilesAreIgnored(t *testing.T) {
	dir := t.TempDir()

	p, err := Load(LoadOptions{
		DotEnvPath: filepath.Join(dir, "missing.env"),
		ConfigPath: filepath.Join(dir, "missing.yaml"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := p.GetOr("some.unset.key", "fallback"); got != "fallback" {
		t.Errorf("expected fallback, got %s", got)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("key: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(LoadOptions{
		DotEnvPath: filepath.Join(dir, "missing.env"),
		ConfigPath: configPath,
	})
	if err == nil {
		t.Fatal("expected parse error")
	}
}

func TestHome_RespectsEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvHome, dir)

	home, err := Home()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if home != dir {
		t.Errorf("expected %s, got %s", dir, home)
	}

	downloads, err := DownloadsDir()
	if err != nil {
		t.Fatal(err)
	}
	if downloads != filepath.Join(dir, DownloadsDirName) {
		t.Errorf("unexpected downloads dir %s", downloads)
	}
}
