package fixture

import (
	"io/fs"
	"path/filepath"
	"strings"
	"time"
)

// Entry is a fixture found on disk.
type Entry struct {
	Path    string
	ModTime time.Time
}

// Walk calls fn for every fixture under root, identified by its metadata
// file. Temporary files left by interrupted writes are skipped.
func Walk(root string, fn func(Entry) error) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") || !strings.HasSuffix(d.Name(), HeadersExt) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return fn(Entry{Path: strings.TrimSuffix(p, HeadersExt), ModTime: info.ModTime()})
	})
}

// Prune removes fixtures whose metadata was last touched before cutoff. With
// dryRun set nothing is removed. It returns the affected fixture paths.
func Prune(root string, cutoff time.Time, dryRun bool) ([]string, error) {
	var pruned []string
	err := Walk(root, func(e Entry) error {
		if !e.ModTime.Before(cutoff) {
			return nil
		}
		pruned = append(pruned, e.Path)
		if dryRun {
			return nil
		}
		for _, file := range []string{e.Path + HeadersExt, e.Path, e.Path + RequestExt} {
			if err := removeIfExists(file); err != nil {
				return err
			}
		}
		return nil
	})
	return pruned, err
}
