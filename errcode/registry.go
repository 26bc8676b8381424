package errcode

import (
	"fmt"
	"sync"
)

// Registry error code registry (prevents code conflicts)
type Registry struct {
	mu     sync.RWMutex
	codes  map[int]string // code -> module:msgKey
	locked bool
}

var globalRegistry = &Registry{
	codes: make(map[int]string),
}

// Register registers an error code in the global registry.
// Panics if the code is already registered under a different key.
func Register(err *LayeredError) *LayeredError {
	return globalRegistry.Register(err)
}

// Register registers an error code
func (r *Registry) Register(err *LayeredError) *LayeredError {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.locked {
		panic(fmt.Sprintf("registry is locked, cannot register error code: %d", err.Code()))
	}

	code := err.Code()
	key := fmt.Sprintf("%s:%s", err.Module(), err.MsgKey())

	if existingKey, exists := r.codes[code]; exists {
		if existingKey != key {
			panic(fmt.Sprintf(
				"error code conflict: code %d is already registered as %s, cannot register as %s",
				code, existingKey, key,
			))
		}
		// same code and key, idempotent
		return err
	}

	r.codes[code] = key
	return err
}

// Lock locks the registry, blocking further registration.
// Usually called once application startup has completed.
func (r *Registry) Lock() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locked = true
}

// IsLocked reports whether the registry is locked
func (r *Registry) IsLocked() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.locked
}

// GetAll returns all registered error codes
func (r *Registry) GetAll() map[int]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[int]string, len(r.codes))
	for k, v := range r.codes {
		out[k] = v
	}
	return out
}
