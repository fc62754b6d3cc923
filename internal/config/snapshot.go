package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rickgao/mt5-session/internal/session"
)

// Snapshot keys for session settings.
const (
	KeyInstallPath       = "install_path"
	KeyTimeoutMs         = "timeout_ms"
	KeyPortable          = "portable"
	KeyAutoReconnect     = "auto_reconnect_enabled"
	KeyRetryAttempts     = "retry_attempts"
	KeyRetryDelaySeconds = "retry_delay_seconds"
)

// ErrSecretKey is returned when a caller tries to store a secret in a Snapshot.
var ErrSecretKey = errors.New("snapshot keys must not hold secrets")

// Snapshot is a flat key/value document of session settings plus caller
// extras.
type Snapshot map[string]any

// NewSnapshot captures cfg and extras. Extras that look like secrets are
// dropped.
func NewSnapshot(cfg session.Config, extras map[string]any) Snapshot {
	s := Snapshot{}
	for k, v := range extras {
		if isSecretKey(k) {
			continue
		}
		s[k] = v
	}

	s[KeyInstallPath] = cfg.Open.InstallPath
	s[KeyTimeoutMs] = cfg.Open.Timeout.Milliseconds()
	s[KeyPortable] = cfg.Open.Portable
	s[KeyAutoReconnect] = cfg.AutoReconnect
	s[KeyRetryAttempts] = cfg.RetryAttempts
	s[KeyRetryDelaySeconds] = cfg.RetryDelay.Seconds()
	return s
}

// Get returns the value stored under key.
func (s Snapshot) Get(key string) (any, bool) {
	v, ok := s[key]
	return v, ok
}

// Set stores value under key.
func (s Snapshot) Set(key string, value any) error {
	if isSecretKey(key) {
		return fmt.Errorf("set %q: %w", key, ErrSecretKey)
	}
	s[key] = value
	return nil
}

// Apply copies the session settings present in the snapshot onto cfg.
// Missing keys leave cfg unchanged.
func (s Snapshot) Apply(cfg *session.Config) error {
	if v, ok := s[KeyInstallPath]; ok {
		str, ok := v.(string)
		if !ok {
			return fmt.Errorf("%s: want string, got %T", KeyInstallPath, v)
		}
		cfg.Open.InstallPath = str
	}
	if v, ok := s[KeyTimeoutMs]; ok {
		ms, err := toInt(KeyTimeoutMs, v)
		if err != nil {
			return err
		}
		cfg.Open.Timeout = time.Duration(ms) * time.Millisecond
	}
	if v, ok := s[KeyPortable]; ok {
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("%s: want bool, got %T", KeyPortable, v)
		}
		cfg.Open.Portable = b
	}
	if v, ok := s[KeyAutoReconnect]; ok {
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("%s: want bool, got %T", KeyAutoReconnect, v)
		}
		cfg.AutoReconnect = b
	}
	if v, ok := s[KeyRetryAttempts]; ok {
		n, err := toInt(KeyRetryAttempts, v)
		if err != nil {
			return err
		}
		cfg.RetryAttempts = int(n)
	}
	if v, ok := s[KeyRetryDelaySeconds]; ok {
		secs, err := toFloat(KeyRetryDelaySeconds, v)
		if err != nil {
			return err
		}
		cfg.RetryDelay = time.Duration(secs * float64(time.Second))
	}
	return nil
}

// SaveSnapshot writes the snapshot as YAML. Secret-looking keys are never
// written.
func SaveSnapshot(path string, s Snapshot) error {
	clean := make(map[string]any, len(s))
	for k, v := range s {
		if isSecretKey(k) {
			continue
		}
		clean[k] = v
	}

	data, err := yaml.Marshal(clean)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads a snapshot written by SaveSnapshot.
func LoadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse snapshot yaml: %w", err)
	}

	s := Snapshot{}
	for k, v := range raw {
		if isSecretKey(k) {
			continue
		}
		s[k] = v
	}
	return s, nil
}

func isSecretKey(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "password") || strings.Contains(k, "secret") || strings.Contains(k, "token")
}

func toInt(key string, v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("%s: %d out of range", key, n)
		}
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%s: want integer, got %v", key, n)
		}
		return int64(n), nil
	default:
		return 0, fmt.Errorf("%s: want integer, got %T", key, v)
	}
}

func toFloat(key string, v any) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case float64:
		return n, nil
	default:
		return 0, fmt.Errorf("%s: want number, got %T", key, v)
	}
}
