// Package config loads session settings. Settings are a flat set of
// upper-case keys read from a YAML, TOML, or KEY=VALUE file and
// overridden by BONECAST_<KEY> environment variables.
package config

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides.
const EnvPrefix = "BONECAST_"

// Store is a flat key/value view of a configuration source. Keys are
// upper-case. The zero Store is empty and usable.
type Store struct {
	values map[string]string
}

// NewStore builds a store from kv, normalizing keys.
func NewStore(kv map[string]string) Store {
	s := Store{values: make(map[string]string, len(kv))}
	for k, v := range kv {
		s.Set(k, v)
	}
	return s
}

func normalizeKey(k string) string {
	return strings.ToUpper(strings.TrimSpace(k))
}

// Set stores v under k.
func (s *Store) Set(k, v string) {
	if s.values == nil {
		s.values = make(map[string]string)
	}
	s.values[normalizeKey(k)] = strings.TrimSpace(v)
}

// Get returns the raw value for k.
func (s Store) Get(k string) (string, bool) {
	v, ok := s.values[normalizeKey(k)]
	return v, ok
}

// Len returns the number of keys.
func (s Store) Len() int { return len(s.values) }

// String returns the value for k, or def when k is absent or empty.
func (s Store) String(k, def string) string {
	if v, ok := s.Get(k); ok && v != "" {
		return v
	}
	return def
}

// Bool returns the value for k parsed as a boolean, or def when k is absent
// or does not parse. yes/no and on/off are accepted besides the strconv forms.
func (s Store) Bool(k string, def bool) bool {
	v, ok := s.Get(k)
	if !ok {
		return def
	}
	switch strings.ToLower(v) {
	case "yes", "on":
		return true
	case "no", "off":
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// Int returns the value for k as an int, or def when absent or invalid.
func (s Store) Int(k string, def int) int {
	v, ok := s.Get(k)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Duration returns the value for k as a duration, or def when absent or
// invalid. A bare number is taken as seconds.
func (s Store) Duration(k string, def time.Duration) time.Duration {
	v, ok := s.Get(k)
	if !ok || v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(f * float64(time.Second))
	}
	return def
}

// ApplyEnv overrides keys from environ entries of the form
// BONECAST_<KEY>=value. Pass os.Environ() in production.
func (s *Store) ApplyEnv(environ []string) {
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(k, EnvPrefix) {
			continue
		}
		if key := strings.TrimPrefix(k, EnvPrefix); key != "" {
			s.Set(key, v)
		}
	}
}

// ErrFormat is returned for a file whose extension is not recognized.
var ErrFormat = errors.New("config: unsupported file format")

// Load reads the file at path. The format follows the extension: .yaml and
// .yml are YAML, .toml is TOML, and .conf, .cfg, .env or no extension are
// KEY=VALUE lines with # comments.
func Load(path string) (Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Store{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var s Store
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var raw map[string]any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return Store{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
		s = fromMap(raw)
	case ".toml":
		var raw map[string]any
		if _, err := toml.Decode(string(data), &raw); err != nil {
			return Store{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
		s = fromMap(raw)
	case ".conf", ".cfg", ".env", "":
		s, err = parseLines(data)
		if err != nil {
			return Store{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	default:
		return Store{}, fmt.Errorf("%w: %s", ErrFormat, path)
	}
	return s, nil
}

func fromMap(raw map[string]any) Store {
	var s Store
	for k, v := range raw {
		if v == nil {
			s.Set(k, "")
			continue
		}
		s.Set(k, fmt.Sprint(v))
	}
	return s
}

func parseLines(data []byte) (Store, error) {
	var s Store
	sc := bufio.NewScanner(bytes.NewReader(data))
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		k, v, ok := strings.Cut(text, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return Store{}, fmt.Errorf("line %d: want KEY=VALUE, got %q", line, text)
		}
		s.Set(k, strings.Trim(strings.TrimSpace(v), `"`))
	}
	return s, sc.Err()
}
