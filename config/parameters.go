package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// Parameters are flat runtime-tunable values, kept apart from structural configuration.
type Parameters map[string]any

// LoadParameters reads parameter files in order. Unlike Load, a later file overwrites keys set by
// an earlier one, and each file's environment sibling overwrites its base. Merging is shallow:
// a top-level key is replaced as a whole. Keys are kept exactly as written, dots included.
func LoadParameters(files []string, env string) (Parameters, error) {
	params := Parameters{}
	for _, file := range files {
		base, err := readParameterFile(file)
		if err != nil {
			return nil, err
		}
		params.merge(base)

		if env == "" {
			continue
		}
		envPath := EnvFilePath(file, env)
		if !fileExists(envPath) {
			continue
		}
		override, err := readParameterFile(envPath)
		if err != nil {
			return nil, err
		}
		params.merge(override)
	}
	return params, nil
}

// readParameterFile decodes a JSON or YAML document without reshaping its keys.
func readParameterFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read parameter file %s: %w", path, err)
	}
	values := map[string]any{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to parse parameter file %s: %w", path, err)
	}
	return values, nil
}

func (p Parameters) merge(values map[string]any) {
	for k, v := range values {
		p[k] = v
	}
}

// Get returns the raw value for key. An exact match wins; otherwise keys compare
// case-insensitively.
func (p Parameters) Get(key string) (any, bool) {
	if v, ok := p[key]; ok {
		return v, true
	}
	for k, v := range p {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

func (p Parameters) String(key string) string {
	v, _ := p.Get(key)
	return cast.ToString(v)
}

func (p Parameters) Int(key string) int {
	v, _ := p.Get(key)
	return cast.ToInt(v)
}

func (p Parameters) Bool(key string) bool {
	v, _ := p.Get(key)
	return cast.ToBool(v)
}

// Duration accepts Go duration strings ("5s") or integer nanoseconds.
func (p Parameters) Duration(key string) time.Duration {
	v, _ := p.Get(key)
	return cast.ToDuration(v)
}

// Keys returns the parameter names in sorted order.
func (p Parameters) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
