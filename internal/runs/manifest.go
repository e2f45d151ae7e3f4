package runs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrManifest means a run's manifest is missing, unparseable or yields no report id.
var ErrManifest = errors.New("manifest error")

// Manifest is the run-level description written by the chapter generator.
type Manifest struct {
	ReportID  string
	Metadata  map[string]any
	CreatedAt string
	Raw       map[string]any
}

// ReadManifest parses the run's manifest. ReportID falls back to the run
// name and Metadata to an empty map.
func ReadManifest(run Run) (Manifest, error) {
	path := run.ManifestPath
	if path == "" {
		p, _, ok := findManifest(run.Dir)
		if !ok {
			return Manifest{}, fmt.Errorf("%w: no manifest in %s", ErrManifest, run.Dir)
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("%w: read %s: %v", ErrManifest, path, err)
	}

	raw, err := decodeManifest(path, data)
	if err != nil {
		return Manifest{}, fmt.Errorf("%w: parse %s: %v", ErrManifest, path, err)
	}

	m := Manifest{Raw: raw}
	m.ReportID = stringValue(raw["reportId"])
	if m.ReportID == "" {
		m.ReportID = run.Name
	}
	if m.ReportID == "" {
		return Manifest{}, fmt.Errorf("%w: empty report id in %s", ErrManifest, path)
	}
	if meta, ok := raw["metadata"].(map[string]any); ok {
		m.Metadata = meta
	} else {
		m.Metadata = map[string]any{}
	}
	m.CreatedAt = stringValue(raw["createdAt"])
	return m, nil
}

func decodeManifest(path string, data []byte) (map[string]any, error) {
	var v any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected an object at top level, got %T", v)
	}
	return m, nil
}

// stringValue renders a scalar manifest value; nil, false and "" are empty.
func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case bool:
		if !t {
			return ""
		}
		return "true"
	case float64:
		if t == 0 {
			return ""
		}
		return fmt.Sprint(t)
	case int:
		if t == 0 {
			return ""
		}
		return fmt.Sprint(t)
	default:
		return fmt.Sprint(t)
	}
}
