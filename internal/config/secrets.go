package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const secretsService = "hdr"

func secretsFilePath() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "hdr", "secrets.json")
}

// fileSecrets keeps secrets in a 0600 JSON file shaped
// {"service": {"account": "value"}}.
type fileSecrets struct {
	path string
}

func (f fileSecrets) Get(account string) (string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return "", fmt.Errorf("secrets file not available: %w", err)
	}
	var secrets map[string]map[string]string
	if err := json.Unmarshal(data, &secrets); err != nil {
		return "", fmt.Errorf("parsing secrets file: %w", err)
	}
	val, ok := secrets[secretsService][account]
	if !ok {
		return "", fmt.Errorf("account %q not found", account)
	}
	return val, nil
}

func (f fileSecrets) Set(account, value string) error {
	var secrets map[string]map[string]string

	data, err := os.ReadFile(f.path)
	if err == nil {
		_ = json.Unmarshal(data, &secrets)
	}
	if secrets == nil {
		secrets = make(map[string]map[string]string)
	}
	if secrets[secretsService] == nil {
		secrets[secretsService] = make(map[string]string)
	}
	secrets[secretsService][account] = value

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("creating secrets dir: %w", err)
	}
	out, err := json.MarshalIndent(secrets, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, out, 0o600)
}

// EnsureAdminToken fills cfg.Admin.Token, generating and persisting a random
// token in the secrets file when none is configured.
func EnsureAdminToken(cfg *Config) error {
	return ensureAdminToken(cfg, fileSecrets{path: secretsFilePath()})
}

func ensureAdminToken(cfg *Config, s secretStore) error {
	if cfg.Admin.Token != "" {
		return nil
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Errorf("generating admin token: %w", err)
	}
	token := hex.EncodeToString(buf)
	if err := s.Set("admin.token", token); err != nil {
		return fmt.Errorf("storing admin token: %w", err)
	}
	cfg.Admin.Token = token
	return nil
}
