//go:build darwin

package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

const defaultsDomain = "com.kalambet.prefs"

func defaultDataDir() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, "Library", "Application Support", "prefs")
	}
	return "prefs-data"
}

func secretHint() string {
	return " or `prefs token secret` (macOS Keychain, service: prefs, account: jwt_secret)"
}

// defaultsBackend keeps settings in a user defaults domain via the
// `defaults` tool.
type defaultsBackend struct {
	domain string
}

func newPlatformBackend() ConfigBackend {
	return &defaultsBackend{domain: defaultsDomain}
}

func (b *defaultsBackend) Location() string {
	return "defaults domain " + b.domain
}

// run invokes `defaults <verb> <domain> args...`. A missing key or domain
// makes defaults exit with status 1, reported as errMissingDefault.
func (b *defaultsBackend) run(verb string, args ...string) (string, error) {
	out, err := exec.Command("defaults", append([]string{verb, b.domain}, args...)...).CombinedOutput()
	s := strings.TrimSpace(string(out))
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 && verb != "write" {
			return "", errMissingDefault
		}
		return "", fmt.Errorf("defaults %s %s: %w: %s", verb, b.domain, err, s)
	}
	return s, nil
}

var errMissingDefault = errors.New("default not set")

func (b *defaultsBackend) GetString(key string) (string, bool, error) {
	s, err := b.run("read", key)
	if errors.Is(err, errMissingDefault) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return s, true, nil
}

func (b *defaultsBackend) GetInt(key string) (int, bool, error) {
	s, ok, err := b.GetString(key)
	if !ok || err != nil {
		return 0, ok, err
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, true, fmt.Errorf("%s is not an integer: %w", key, err)
	}
	return i, true, nil
}

func (b *defaultsBackend) SetString(key, val string) error {
	_, err := b.run("write", key, "-string", val)
	return err
}

func (b *defaultsBackend) SetInt(key string, val int) error {
	_, err := b.run("write", key, "-int", strconv.Itoa(val))
	return err
}

// Delete removes key; deleting an unset key succeeds.
func (b *defaultsBackend) Delete(key string) error {
	_, err := b.run("delete", key)
	if errors.Is(err, errMissingDefault) {
		return nil
	}
	return err
}
