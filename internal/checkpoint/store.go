// Package checkpoint persists the optimizer's best result and result cache so
// that a long search can resume after a restart.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrNotFound is returned by Store.Load for keys that were never saved.
var ErrNotFound = errors.New("checkpoint not found")

// Store persists opaque blobs under keys of the form <strategyType>/<filename>.
type Store interface {
	Save(ctx context.Context, key string, data []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
}

// Key builds the blob key for a strategy type and file name.
func Key(strategyType, filename string) string {
	return strategyType + "/" + filename
}

// validateKey rejects keys that are absolute or escape the store root.
func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") {
		return fmt.Errorf("invalid checkpoint key %q", key)
	}
	clean := path.Clean(key)
	if clean != key || clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("invalid checkpoint key %q", key)
	}
	return nil
}
