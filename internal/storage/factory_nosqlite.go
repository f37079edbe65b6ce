//go:build !sqlite

package storage

import "fmt"

func newSQLiteStore(path string) (Store, error) {
	return nil, fmt.Errorf("%w: sqlite (db %s); rebuild with -tags sqlite", ErrBackendUnavailable, path)
}
