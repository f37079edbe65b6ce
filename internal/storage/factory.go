package storage

import (
	"errors"
	"fmt"
)

const defaultStoreKind = "memory"

var ErrBackendUnavailable = errors.New("store backend unavailable in this build")

func DefaultStoreKind() string {
	return defaultStoreKind
}

func NewStore(kind, sqlitePath string) (Store, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return newSQLiteStore(sqlitePath)
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", kind)
	}
}

func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
