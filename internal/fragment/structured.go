package fragment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// JSONDecoder handles chapter JSON files as written by the generator.
// Numbers stay json.Number so large integers reach the IR unchanged.
type JSONDecoder struct{}

func (d *JSONDecoder) Decode(r io.Reader, filename string) (Fragment, error) {
	var v any
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return Fragment{}, fmt.Errorf("parse json: %w", err)
	}
	return asFragment(v, filename)
}

// YAMLDecoder handles hand-edited chapters. Values are normalised through
// JSON so that they look exactly like decoded JSON to the validator.
type YAMLDecoder struct{}

func (d *YAMLDecoder) Decode(r io.Reader, filename string) (Fragment, error) {
	var v any
	if err := yaml.NewDecoder(r).Decode(&v); err != nil {
		return Fragment{}, fmt.Errorf("parse yaml: %w", err)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return Fragment{}, fmt.Errorf("normalise yaml: %w", err)
	}
	var norm any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&norm); err != nil {
		return Fragment{}, fmt.Errorf("normalise yaml: %w", err)
	}
	return asFragment(norm, filename)
}

func asFragment(v any, filename string) (Fragment, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return Fragment{}, fmt.Errorf("%s: expected an object at top level, got %T", filename, v)
	}
	return Fragment{Source: filename, Data: m}, nil
}
