// Package runs locates chapter runs on disk and reads their manifests.
package runs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrNoRun means the chapter root is missing or holds no run with a manifest.
var ErrNoRun = errors.New("no chapter run found")

// ManifestNames lists the file names that mark a directory as a run, in lookup order.
var ManifestNames = []string{"manifest.json", "manifest.yaml", "manifest.yml"}

// Run is one chapter-generation output directory.
type Run struct {
	Name         string
	Dir          string
	ManifestPath string
	ModTime      time.Time // manifest modification time
}

// FindLatest returns the run under root whose manifest was modified last.
// Equal modification times are broken by the lexically greatest directory name.
func FindLatest(root string) (Run, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Run{}, fmt.Errorf("%w: chapter root does not exist: %s", ErrNoRun, root)
		}
		return Run{}, fmt.Errorf("%w: read chapter root %s: %v", ErrNoRun, root, err)
	}

	var latest Run
	found := false
	for _, e := range entries {
		dir := filepath.Join(root, e.Name())
		if !isDir(dir) {
			continue
		}
		manifest, modTime, ok := findManifest(dir)
		if !ok {
			continue
		}
		cand := Run{Name: e.Name(), Dir: dir, ManifestPath: manifest, ModTime: modTime}
		if !found || newer(cand, latest) {
			latest = cand
			found = true
		}
	}
	if !found {
		return Run{}, fmt.Errorf("%w: no directory with a manifest under %s", ErrNoRun, root)
	}
	return latest, nil
}

// List returns every run under root, newest first.
func List(root string) ([]Run, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var out []Run
	for _, e := range entries {
		dir := filepath.Join(root, e.Name())
		if !isDir(dir) {
			continue
		}
		if manifest, modTime, ok := findManifest(dir); ok {
			out = append(out, Run{Name: e.Name(), Dir: dir, ManifestPath: manifest, ModTime: modTime})
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && newer(out[j], out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

func newer(a, b Run) bool {
	if !a.ModTime.Equal(b.ModTime) {
		return a.ModTime.After(b.ModTime)
	}
	return a.Name > b.Name
}

// isDir follows symlinks, so a linked run directory counts.
func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func findManifest(dir string) (string, time.Time, bool) {
	for _, name := range ManifestNames {
		p := filepath.Join(dir, name)
		info, err := os.Stat(p)
		if err != nil || info.IsDir() {
			continue
		}
		return p, info.ModTime(), true
	}
	return "", time.Time{}, false
}
