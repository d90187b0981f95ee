//go:build wasip1

package configstore

import (
	"errors"

	"github.com/fastly/compute-sdk-go/configstore"
)

// fastlyStore maps the not found error of the Fastly store.
type fastlyStore struct {
	store *configstore.Store
}

func (s fastlyStore) Get(key string) (string, error) {
	value, err := s.store.Get(key)
	if errors.Is(err, configstore.ErrKeyNotFound) {
		return "", ErrKeyNotFound
	}
	return value, err
}

// Open opens the named Fastly config store and returns a provider
// for it.
func Open(name string, keys []string, delim string, cb func(string) string) (*ConfigStore, error) {
	store, err := configstore.Open(name)
	if err != nil {
		return nil, err
	}

	return Provider(fastlyStore{store: store}, keys, delim, cb), nil
}
