package di

import (
	"fmt"
	"strings"
)

// NotFoundError means no provider or instance is registered for the requested type.
type NotFoundError struct {
	Type string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("di: no provider registered for %s", e.Type)
}

// CycleError means resolving a type required itself, directly or through other providers.
type CycleError struct {
	Path []string
}

func (e CycleError) Error() string {
	if len(e.Path) == 0 {
		return "di: dependency cycle detected"
	}
	return "di: dependency cycle detected: " + strings.Join(e.Path, " -> ")
}

// ProviderError wraps a failure returned by a provider.
type ProviderError struct {
	Type string
	Err  error
}

func (e ProviderError) Error() string {
	return fmt.Sprintf("di: build %s: %v", e.Type, e.Err)
}

func (e ProviderError) Unwrap() error { return e.Err }
