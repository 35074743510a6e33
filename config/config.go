package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// EnvPrefix is the prefix for environment variables that override configuration keys
	// (FOUNDRY_HTTP_PORT overrides http.port).
	EnvPrefix = "FOUNDRY"

	// EnvVar names the process-wide run-time environment (development, production, test, ...).
	EnvVar = "FOUNDRY_ENV"
)

// Store holds the layered configuration read at startup. It is read-only after Load returns.
type Store struct {
	v     *viper.Viper
	files []string
}

// Environment returns the explicit environment name if set, otherwise the value of FOUNDRY_ENV.
func Environment(explicit string) string {
	if explicit != "" {
		return explicit
	}
	return strings.TrimSpace(os.Getenv(EnvVar))
}

// EnvFilePath returns the environment-specific sibling of path: config.json becomes
// config.<env>.json in the same directory.
func EnvFilePath(path, env string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "." + env + ext
}

// Load reads every base file and its optional environment sibling into a single Store.
//
// Each base file forms one layer. An existing <name>.<env><ext> sibling is deep-merged over its
// own base file. Across layers the first-listed file wins: later files only add keys the earlier
// ones do not define. A missing base file is an error; a missing environment file is skipped.
func Load(files []string, env string) (*Store, error) {
	v := newViper()

	layers := make([]map[string]any, 0, len(files))
	read := make([]string, 0, len(files)*2)
	for _, file := range files {
		layer, layerFiles, err := readLayer(file, env)
		if err != nil {
			return nil, err
		}
		layers = append(layers, layer)
		read = append(read, layerFiles...)
	}

	// Merge in reverse so that earlier layers override later ones.
	for i := len(layers) - 1; i >= 0; i-- {
		if err := v.MergeConfigMap(layers[i]); err != nil {
			return nil, fmt.Errorf("failed to merge configuration from %s: %w", files[i], err)
		}
	}

	return &Store{v: v, files: read}, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// readLayer reads a base file and, when env is set and the sibling exists, merges the sibling
// over it. It returns the merged settings and the files actually read.
func readLayer(path, env string) (map[string]any, []string, error) {
	base, err := readFile(path)
	if err != nil {
		return nil, nil, err
	}
	if env == "" {
		return base, []string{path}, nil
	}

	envPath := EnvFilePath(path, env)
	if _, err := os.Stat(envPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return base, []string{path}, nil
		}
		return nil, nil, fmt.Errorf("failed to stat environment file %s: %w", envPath, err)
	}

	override, err := readFile(envPath)
	if err != nil {
		return nil, nil, err
	}

	merged := viper.New()
	if err := merged.MergeConfigMap(base); err != nil {
		return nil, nil, fmt.Errorf("failed to merge %s: %w", path, err)
	}
	if err := merged.MergeConfigMap(override); err != nil {
		return nil, nil, fmt.Errorf("failed to merge %s: %w", envPath, err)
	}
	return merged.AllSettings(), []string{path, envPath}, nil
}

// readFile parses a single JSON or YAML document. Files without an extension are read as JSON.
func readFile(path string) (map[string]any, error) {
	fv := viper.New()
	fv.SetConfigFile(path)
	if filepath.Ext(path) == "" {
		fv.SetConfigType("json")
	}
	if err := fv.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read configuration file %s: %w", path, err)
	}
	return fv.AllSettings(), nil
}

// Files returns the files that were read, in read order.
func (s *Store) Files() []string {
	out := make([]string, len(s.files))
	copy(out, s.files)
	return out
}

func (s *Store) Get(key string) any { return s.v.Get(key) }

func (s *Store) GetString(key string) string { return s.v.GetString(key) }

func (s *Store) GetInt(key string) int { return s.v.GetInt(key) }

func (s *Store) GetBool(key string) bool { return s.v.GetBool(key) }

func (s *Store) GetStringSlice(key string) []string { return s.v.GetStringSlice(key) }

// IsSet reports whether key is defined in any layer or by an environment variable.
func (s *Store) IsSet(key string) bool { return s.v.IsSet(key) }

// AllSettings returns the merged settings tree with environment overrides applied.
func (s *Store) AllSettings() map[string]any { return s.v.AllSettings() }

// Sub returns the subtree under key as its own Store, or nil if key is not a section.
func (s *Store) Sub(key string) *Store {
	section, ok := s.section(key)
	if !ok {
		return nil
	}
	sub := viper.New()
	if err := sub.MergeConfigMap(section); err != nil {
		return nil
	}
	return &Store{v: sub, files: s.files}
}

// UnmarshalKey decodes the section under key into out. Keys that the section does not define keep
// the values already present in out, so callers can pre-populate defaults.
func (s *Store) UnmarshalKey(key string, out any) error {
	section, ok := s.section(key)
	if !ok {
		return nil
	}
	sub := viper.New()
	if err := sub.MergeConfigMap(section); err != nil {
		return fmt.Errorf("failed to read section %q: %w", key, err)
	}
	if err := sub.Unmarshal(out); err != nil {
		return fmt.Errorf("unable to decode section %q: %w", key, err)
	}
	return nil
}

// section walks AllSettings rather than calling Get so that nested environment overrides are
// included.
func (s *Store) section(key string) (map[string]any, bool) {
	var cur any = s.v.AllSettings()
	for _, part := range strings.Split(strings.ToLower(key), ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	m, ok := cur.(map[string]any)
	return m, ok
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
