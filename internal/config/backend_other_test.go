//go:build !darwin

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}

func TestConfigFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs", "config.json")
	b := newFileBackend(path)

	if err := b.SetString("app.id", "file-app"); err != nil {
		t.Fatalf("SetString: %v", err)
	}
	if err := b.SetInt("server.port", 4300); err != nil {
		t.Fatalf("SetInt: %v", err)
	}

	reloaded := newFileBackend(path)
	if v, ok, err := reloaded.GetString("app.id"); err != nil || !ok || v != "file-app" {
		t.Errorf("GetString(app.id) = %q, %v, %v", v, ok, err)
	}
	if v, ok, err := reloaded.GetInt("server.port"); err != nil || !ok || v != 4300 {
		t.Errorf("GetInt(server.port) = %d, %v, %v", v, ok, err)
	}

	if err := reloaded.Delete("app.id"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := newFileBackend(path).GetString("app.id"); ok {
		t.Error("app.id still present after Delete")
	}
}

func TestConfigFileMalformedFallsBack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := writeFile(path, "{not json"); err != nil {
		t.Fatal(err)
	}
	b := newFileBackend(path)
	if _, ok, err := b.GetString("app.id"); ok || err != nil {
		t.Errorf("malformed file: ok=%v err=%v, want empty backend", ok, err)
	}
}

func TestSecretsFileRoundTrip(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	if _, err := keychainGet(keychainService, keychainAccount); err == nil {
		t.Fatal("expected error before any secret is stored")
	}
	if err := StoreJWTSecret("s3cret"); err != nil {
		t.Fatalf("StoreJWTSecret: %v", err)
	}
	got, err := keychainReader{}.Get(keychainService, keychainAccount)
	if err != nil || got != "s3cret" {
		t.Errorf("keychainReader.Get = %q, %v", got, err)
	}
	if err := StoreJWTSecret(""); err == nil {
		t.Error("expected error for empty secret")
	}
}

func TestSecretsFilePermissions(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	path := secretsFilePath()

	if err := StoreJWTSecret("first"); err != nil {
		t.Fatalf("StoreJWTSecret: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("secrets file mode = %o, want 600", perm)
	}
	dirInfo, err := os.Stat(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if perm := dirInfo.Mode().Perm(); perm != 0o700 {
		t.Errorf("secrets dir mode = %o, want 700", perm)
	}

	// A file loosened by hand is tightened again on the next write.
	if err := os.Chmod(path, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := StoreJWTSecret("second"); err != nil {
		t.Fatalf("StoreJWTSecret: %v", err)
	}
	info, _ = os.Stat(path)
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("secrets file mode after rewrite = %o, want 600", perm)
	}
	if got, err := (keychainReader{}).Get(keychainService, keychainAccount); err != nil || got != "second" {
		t.Errorf("secret = %q, %v", got, err)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("secrets dir holds %d entries, want only secrets.json", len(entries))
	}
}

func TestSecretsFileCorruptIsReplaced(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	path := secretsFilePath()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(path, "{broken"); err != nil {
		t.Fatal(err)
	}

	if _, err := keychainGet(keychainService, keychainAccount); err == nil {
		t.Error("expected error reading a corrupt secrets file")
	}
	if err := StoreJWTSecret("fresh"); err != nil {
		t.Fatalf("StoreJWTSecret over corrupt file: %v", err)
	}
	if got, err := (keychainReader{}).Get(keychainService, keychainAccount); err != nil || got != "fresh" {
		t.Errorf("secret = %q, %v", got, err)
	}
}

func TestFileBackendLocation(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	want := filepath.Join(dir, "prefs", "config.json")
	if got := Location(); got != want {
		t.Errorf("Location() = %q, want %q", got, want)
	}
}
