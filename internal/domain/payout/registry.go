package payout

// Registry maps each payout method to its provider adapter and tracks
// whether the rail has the credentials it needs. Selection failures are
// reported as *ConfigError, never as payout failures.
type Registry struct {
	entries map[Method]registryEntry
}

type registryEntry struct {
	provider   Provider
	configured bool
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[Method]registryEntry)}
}

// Register binds a provider to a method. configured reflects whether the
// rail's credentials are present; it is checked at selection time without
// any network call.
func (r *Registry) Register(m Method, p Provider, configured bool) {
	r.entries[m] = registryEntry{provider: p, configured: configured}
}

// Select returns the adapter for the given method.
func (r *Registry) Select(m Method) (Provider, error) {
	if !m.IsValid() {
		return nil, &ConfigError{Method: m, Reason: "unknown payout method"}
	}
	entry, ok := r.entries[m]
	if !ok {
		return nil, &ConfigError{Method: m, Reason: "no provider registered"}
	}
	if !entry.configured {
		return nil, &ConfigError{Method: m, Reason: "provider credentials not configured"}
	}
	return entry.provider, nil
}

// IsConfigured reports whether the method has a registered, credentialed
// provider.
func (r *Registry) IsConfigured(m Method) bool {
	entry, ok := r.entries[m]
	return ok && entry.configured
}

// ValidateRecipient runs the provider's identifier pre-flight check.
func (r *Registry) ValidateRecipient(m Method, identifier string) (bool, error) {
	provider, err := r.Select(m)
	if err != nil {
		return false, err
	}
	return provider.ValidateIdentifier(identifier), nil
}
