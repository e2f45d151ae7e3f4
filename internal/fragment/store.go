package fragment

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// manifestNames are skipped at the top of a run directory.
var manifestNames = map[string]bool{
	"manifest.json": true,
	"manifest.yaml": true,
	"manifest.yml":  true,
}

// Store loads the chapter fragments of one run directory.
type Store struct {
	log *slog.Logger
}

func NewStore(log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{log: log}
}

// Load decodes every supported file under runDir in lexical path order.
// Files that fail to decode are logged and skipped.
func (s *Store) Load(runDir string) ([]Fragment, error) {
	runDir = filepath.Clean(runDir)
	info, err := os.Stat(runDir)
	if err != nil {
		return nil, fmt.Errorf("stat run dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("run dir %s is not a directory", runDir)
	}
	// WalkDir does not descend through a symlinked root.
	root, err := filepath.EvalSymlinks(runDir)
	if err != nil {
		return nil, fmt.Errorf("resolve run dir: %w", err)
	}

	var frags []Fragment
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		name := d.Name()
		if strings.HasPrefix(name, ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if filepath.Dir(path) == root && manifestNames[strings.ToLower(name)] {
			return nil
		}
		if !IsSupportedExtension(name) {
			return nil
		}

		// Report paths under the directory the caller named.
		if rel, err := filepath.Rel(root, path); err == nil {
			path = filepath.Join(runDir, rel)
		}
		f, err := s.decodeFile(path)
		if err != nil {
			s.log.Warn("skipping undecodable fragment", "file", path, "error", err)
			return nil
		}
		frags = append(frags, f)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk run dir: %w", err)
	}
	return frags, nil
}

func (s *Store) decodeFile(path string) (Fragment, error) {
	dec, err := ForFile(path)
	if err != nil {
		return Fragment{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return Fragment{}, err
	}
	defer f.Close()
	return dec.Decode(f, path)
}
