//go:build !darwin

package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Without a system keychain, secrets live in a JSON file readable only by
// the owner: {"<service>": {"<account>": "<secret>"}}.
const (
	secretsDirMode  os.FileMode = 0o700
	secretsFileMode os.FileMode = 0o600
)

func secretsFilePath() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "prefs", "secrets.json")
}

type secretsFile map[string]map[string]string

func readSecrets(path string) (secretsFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Mode().Perm()&0o077 != 0 {
		slog.Warn("secrets file is accessible by other users", "path", path, "mode", info.Mode().Perm())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s secretsFile
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing secrets file: %w", err)
	}
	return s, nil
}

// write replaces path atomically with owner-only permissions.
func (s secretsFile) write(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), secretsDirMode); err != nil {
		return fmt.Errorf("creating secrets dir: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".secrets-*.json")
	if err != nil {
		return fmt.Errorf("creating secrets file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(secretsFileMode); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing secrets file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func keychainGet(service, account string) ([]byte, error) {
	secrets, err := readSecrets(secretsFilePath())
	if err != nil {
		return nil, fmt.Errorf("secret store not available: %w", err)
	}
	val, ok := secrets[service][account]
	if !ok {
		return nil, fmt.Errorf("no secret for %s/%s", service, account)
	}
	return []byte(val), nil
}

func keychainSet(service, account, value string) error {
	path := secretsFilePath()

	secrets, err := readSecrets(path)
	if err != nil && !os.IsNotExist(err) {
		// A corrupt file is replaced.
		slog.Warn("discarding unreadable secrets file", "path", path, "error", err)
	}
	if secrets == nil {
		secrets = make(secretsFile)
	}
	if secrets[service] == nil {
		secrets[service] = make(map[string]string)
	}
	secrets[service][account] = value
	return secrets.write(path)
}
