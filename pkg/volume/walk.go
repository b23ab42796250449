package volume

import (
	"fmt"
	"os"
	"path/filepath"
)

// ListTopLevel lists the entry names directly under a volume's mount
// root, for the reconciler's junk-file sweep.
func ListTopLevel(v *Volume) ([]string, error) {
	entries, err := os.ReadDir(v.MountPath())
	if err != nil {
		return nil, fmt.Errorf("volume %s: list mount root: %w", v.ID(), err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

// RemoveTopLevel removes a top-level entry by name, regardless of
// whether it is a file or directory, for junk files the store engine
// or recovery left behind directly under the mount root.
func RemoveTopLevel(v *Volume, name string) error {
	path, err := v.resolve(filepath.Join(v.MountPath(), name))
	if err != nil {
		return err
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("volume %s: remove %s: %w", v.ID(), name, err)
	}
	return nil
}

// WalkFiles returns every regular file's absolute path under root,
// recursively. A missing root is not an error - it simply yields no
// paths (a tenant that never wrote to this volume).
func WalkFiles(root string) ([]string, error) {
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil, nil
	}
	var paths []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return paths, nil
}

// PruneEmptyDirs removes empty leaf directories under root,
// depth-first, without removing root itself.
func PruneEmptyDirs(root string) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read dir %s: %w", root, err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		child := filepath.Join(root, e.Name())
		if err := PruneEmptyDirs(child); err != nil {
			return err
		}
		remaining, err := os.ReadDir(child)
		if err != nil {
			continue
		}
		if len(remaining) == 0 {
			_ = os.Remove(child)
		}
	}
	return nil
}
