// Package storefront resolves the active store and language of a request
// and builds store qualified URLs.
package storefront

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrUnknownStore is returned when a store id is not registered
var ErrUnknownStore = errors.New("storefront: unknown store")

// Store is a storefront tenant
type Store struct {
	ID              string   `yaml:"id" json:"id"`
	Name            string   `yaml:"name" json:"name"`
	Host            string   `yaml:"host" json:"host,omitempty"`
	DefaultLanguage string   `yaml:"default_language" json:"default_language"`
	Languages       []string `yaml:"languages" json:"languages"`
	// TrustedStores lists stores whose accounts may sign in here
	TrustedStores []string `yaml:"trusted_stores" json:"trusted_stores,omitempty"`
}

// HasLanguage matches a culture name case insensitive
func (s Store) HasLanguage(lang string) bool {
	return slices.ContainsFunc(s.Languages, func(l string) bool {
		return strings.EqualFold(l, lang)
	})
}

// canonicalLanguage returns the configured spelling of lang
func (s Store) canonicalLanguage(lang string) string {
	for _, l := range s.Languages {
		if strings.EqualFold(l, lang) {
			return l
		}
	}
	return s.DefaultLanguage
}

// Registry holds the configured stores
type Registry struct {
	stores    map[string]Store
	order     []string
	defaultID string
}

// NewRegistry validates and indexes stores. The first store is the
// default unless defaultID names another one.
func NewRegistry(defaultID string, stores ...Store) (*Registry, error) {
	if len(stores) == 0 {
		return nil, errors.New("storefront: at least one store is required")
	}

	r := &Registry{stores: make(map[string]Store, len(stores))}
	for _, s := range stores {
		if s.ID == "" {
			return nil, errors.New("storefront: store id is required")
		}
		key := strings.ToLower(s.ID)
		if _, dup := r.stores[key]; dup {
			return nil, fmt.Errorf("storefront: duplicate store %q", s.ID)
		}
		if s.DefaultLanguage == "" && len(s.Languages) > 0 {
			s.DefaultLanguage = s.Languages[0]
		}
		if s.DefaultLanguage != "" && !s.HasLanguage(s.DefaultLanguage) {
			s.Languages = append(s.Languages, s.DefaultLanguage)
		}
		r.stores[key] = s
		r.order = append(r.order, key)
	}

	if defaultID == "" {
		defaultID = stores[0].ID
	}
	if _, ok := r.stores[strings.ToLower(defaultID)]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStore, defaultID)
	}
	r.defaultID = strings.ToLower(defaultID)

	return r, nil
}

// Get finds a store by id
func (r *Registry) Get(id string) (Store, bool) {
	s, ok := r.stores[strings.ToLower(id)]
	return s, ok
}

// ByHost finds the store bound to host, ports are ignored
func (r *Registry) ByHost(host string) (Store, bool) {
	host = strings.ToLower(host)
	if i := strings.LastIndex(host, ":"); i > 0 && !strings.Contains(host[i:], "]") {
		host = host[:i]
	}
	for _, key := range r.order {
		s := r.stores[key]
		if s.Host != "" && strings.EqualFold(s.Host, host) {
			return s, true
		}
	}
	return Store{}, false
}

// Default returns the fallback store
func (r *Registry) Default() Store {
	return r.stores[r.defaultID]
}

// Stores lists stores in registration order
func (r *Registry) Stores() []Store {
	out := make([]Store, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.stores[key])
	}
	return out
}
