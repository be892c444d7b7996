package storage

import (
	"context"
	"fmt"
)

// Resolver dispatches raw artifact URIs to the Store registered for
// their scheme. Registration happens once at composition time; the
// resolver is read-only afterwards and safe for concurrent use.
type Resolver struct {
	backends map[string]Store
}

// NewResolver creates an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{backends: make(map[string]Store)}
}

// Register binds a scheme to a backend. A later registration for the
// same scheme replaces the earlier one.
func (r *Resolver) Register(scheme string, s Store) {
	r.backends[scheme] = s
}

// Schemes returns the registered schemes.
func (r *Resolver) Schemes() []string {
	out := make([]string, 0, len(r.backends))
	for s := range r.backends {
		out = append(out, s)
	}
	return out
}

func (r *Resolver) backend(u URI) (Store, error) {
	s, ok := r.backends[u.Scheme]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, u.Scheme)
	}
	return s, nil
}

// Get fetches the artifact at the raw URI.
func (r *Resolver) Get(ctx context.Context, raw string) ([]byte, error) {
	u, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	s, err := r.backend(u)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, u)
}

// Put writes the artifact at the raw URI.
func (r *Resolver) Put(ctx context.Context, raw string, data []byte) error {
	u, err := Parse(raw)
	if err != nil {
		return err
	}
	s, err := r.backend(u)
	if err != nil {
		return err
	}
	return s.Put(ctx, u, data)
}

// Exists reports whether an artifact is present at the raw URI.
func (r *Resolver) Exists(ctx context.Context, raw string) (bool, error) {
	u, err := Parse(raw)
	if err != nil {
		return false, err
	}
	s, err := r.backend(u)
	if err != nil {
		return false, err
	}
	return s.Exists(ctx, u)
}
