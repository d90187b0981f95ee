// Package configstore implements a koanf.Provider that reads a fixed
// set of keys from an edge config store.
package configstore

import (
	"errors"

	"github.com/knadh/koanf/maps"
)

// ErrKeyNotFound is returned by a Store for keys it does not hold.
var ErrKeyNotFound = errors.New("key not found")

// Store is the read side of a config store.
type Store interface {
	Get(key string) (string, error)
}

// ConfigStore implements a raw map[string]any provider.
type ConfigStore struct {
	store Store
	keys  []string
	delim string
	cb    func(string) string
}

// Provider returns a provider reading keys from store. Missing keys
// are skipped. If cb is set, it maps store keys to config keys; keys
// mapped to an empty string are skipped.
func Provider(store Store, keys []string, delim string, cb func(string) string) *ConfigStore {
	return &ConfigStore{
		store: store,
		keys:  keys,
		delim: delim,
		cb:    cb,
	}
}

// ReadBytes is not supported by the config store provider.
func (c *ConfigStore) ReadBytes() ([]byte, error) {
	return nil, errors.New("config store provider does not support this method")
}

// Read returns the values of all keys found in the store.
func (c *ConfigStore) Read() (map[string]any, error) {
	mp := make(map[string]any, len(c.keys))

	for _, key := range c.keys {
		name := key
		if c.cb != nil {
			name = c.cb(key)
		}
		if name == "" {
			continue
		}

		value, err := c.store.Get(key)
		if errors.Is(err, ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}

		mp[name] = value
	}

	if c.delim != "" {
		mp = maps.Unflatten(mp, c.delim)
	}

	return mp, nil
}
