package gateway

import (
	"errors"
	"sort"
	"sync"
)

// ErrNoActiveGateway is returned by Default when the registry has no enabled
// gateway to fall back to.
var ErrNoActiveGateway = errors.New("gateway: no active gateway")

// ErrUnknownGateway is returned by Get for identifiers never registered.
var ErrUnknownGateway = errors.New("gateway: unknown gateway")

// Registry holds the set of registered gateways and the configured default.
// Registration normally happens once during startup, but the registry is safe
// for concurrent use so tests and admin reloads can re-register.
type Registry struct {
	mu        sync.RWMutex
	gateways  map[string]Gateway
	defaultID string
}

// NewRegistry builds an empty registry whose Default resolves through
// defaultID when that gateway is registered and enabled.
func NewRegistry(defaultID string) *Registry {
	return &Registry{
		gateways:  make(map[string]Gateway),
		defaultID: defaultID,
	}
}

// Register adds gw under its descriptor id. A later registration with the
// same id replaces the earlier one. Gateways with an empty id are ignored.
func (r *Registry) Register(gw Gateway) {
	if gw == nil {
		return
	}
	id := gw.Descriptor().ID
	if id == "" {
		return
	}
	r.mu.Lock()
	r.gateways[id] = gw
	r.mu.Unlock()
}

// Get returns the gateway registered under id.
func (r *Registry) Get(id string) (Gateway, error) {
	r.mu.RLock()
	gw, ok := r.gateways[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownGateway
	}
	return gw, nil
}

// IsActive reports whether id names a registered, enabled gateway.
func (r *Registry) IsActive(id string) bool {
	r.mu.RLock()
	gw, ok := r.gateways[id]
	r.mu.RUnlock()
	return ok && gw.Descriptor().Enabled
}

// List returns the registered gateways. With enabledOnly only enabled ones
// are included. With sorted the result is ordered by Ordering ascending with
// id as the tie-break, and the active default gateway is moved to the front.
func (r *Registry) List(enabledOnly, sorted bool) []Gateway {
	r.mu.RLock()
	out := make([]Gateway, 0, len(r.gateways))
	for _, gw := range r.gateways {
		if enabledOnly && !gw.Descriptor().Enabled {
			continue
		}
		out = append(out, gw)
	}
	defaultID := r.defaultID
	r.mu.RUnlock()

	if !sorted {
		return out
	}
	sort.Slice(out, func(i, j int) bool {
		di, dj := out[i].Descriptor(), out[j].Descriptor()
		switch {
		case di.ID == defaultID && di.Enabled:
			return dj.ID != defaultID
		case dj.ID == defaultID && dj.Enabled:
			return false
		case di.Ordering != dj.Ordering:
			return di.Ordering < dj.Ordering
		default:
			return di.ID < dj.ID
		}
	})
	return out
}

// Default returns the gateway payments fall back to: the configured default
// when it is enabled, otherwise the first enabled gateway in list order.
func (r *Registry) Default() (Gateway, error) {
	r.mu.RLock()
	defaultID := r.defaultID
	r.mu.RUnlock()

	if defaultID != "" {
		if gw, err := r.Get(defaultID); err == nil && gw.Descriptor().Enabled {
			return gw, nil
		}
	}
	enabled := r.List(true, true)
	if len(enabled) == 0 {
		return nil, ErrNoActiveGateway
	}
	return enabled[0], nil
}
