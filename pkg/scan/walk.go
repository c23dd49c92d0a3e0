package scan

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// ErrRootNotFound is returned when the root of a walk does not exist.
var ErrRootNotFound = errors.New("root directory not found")

// WalkFunc is called for every regular file below the root, with its path
// relative to the root in forward slash form. err is set when the entry
// could not be read; returning nil skips it and continues the walk.
type WalkFunc func(relpath string, err error) error

// Walk visits the regular files below root in lexical order. Symbolic links
// are not followed nor reported. Only a missing or unreadable root aborts
// the walk.
func Walk(ctx context.Context, fsys afero.Fs, root string, fn WalkFunc) error {
	st, err := fsys.Stat(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrRootNotFound, root)
		}
		return fmt.Errorf("stat %s: %w", root, err)
	}
	if !st.IsDir() {
		return fmt.Errorf("%s is not a directory", root)
	}

	return afero.Walk(fsys, root, func(path string, info os.FileInfo, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if err != nil {
			if path == root {
				return fmt.Errorf("read %s: %w", root, err)
			}
			if err = fn(rel, err); err != nil {
				return err
			}
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		// afero.Walk hands out Lstat results where the filesystem
		// supports it, so links never look like regular files.
		if !info.Mode().IsRegular() {
			return nil
		}
		return fn(rel, nil)
	})
}

// Files returns the regular files below root. Entries that could not be
// read are returned as errs.
func Files(ctx context.Context, fsys afero.Fs, root string) (files []string, errs []error, err error) {
	err = Walk(ctx, fsys, root, func(relpath string, err error) error {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", relpath, err))
			return nil
		}
		files = append(files, relpath)
		return nil
	})
	return files, errs, err
}
