package profiles

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/accounts/internal/common"
)

// FSStore keeps profile assets under a public assets root; refs are paths
// relative to it.
type FSStore struct {
	root string
}

func NewFSStore(root string) *FSStore {
	return &FSStore{root: filepath.Clean(root)}
}

func (s *FSStore) Delete(_ context.Context, ref string) error {
	path, err := s.resolve(ref)
	if err != nil {
		return err
	}

	fi, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat profile asset %s: %w", ref, err)
	}
	if fi.IsDir() {
		return fmt.Errorf("%w: %s is a directory", common.ErrorInvalidProfile, ref)
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove profile asset %s: %w", ref, err)
	}
	return nil
}

// resolve joins ref to the root and rejects refs that leave it.
func (s *FSStore) resolve(ref string) (string, error) {
	path := filepath.Join(s.root, ref)
	rel, err := filepath.Rel(s.root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", common.ErrorInvalidProfile, ref)
	}
	return path, nil
}
