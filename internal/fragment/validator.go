package fragment

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/chapter.schema.json
var chapterSchema []byte

const embeddedSchemaURL = "https://github.com/storm-crypto/BettaFish/schema/chapter.schema.json"

// Validator checks one fragment against the chapter schema. It never
// blocks the pipeline; callers treat failures as warnings.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the schema at schemaPath, or the embedded chapter
// schema when schemaPath is empty.
func NewValidator(schemaPath string) (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7

	url := embeddedSchemaURL
	if schemaPath == "" {
		if err := compiler.AddResource(url, bytes.NewReader(chapterSchema)); err != nil {
			return nil, fmt.Errorf("add schema resource: %w", err)
		}
	} else {
		abs, err := filepath.Abs(schemaPath)
		if err != nil {
			return nil, fmt.Errorf("resolve schema path: %w", err)
		}
		f, err := os.Open(abs)
		if err != nil {
			return nil, fmt.Errorf("open schema file: %w", err)
		}
		defer f.Close()
		if err := compiler.AddResource(abs, f); err != nil {
			return nil, fmt.Errorf("add schema resource: %w", err)
		}
		url = abs
	}

	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// Validate reports whether f conforms, plus one "<location>: <message>"
// line per leaf violation.
func (v *Validator) Validate(f Fragment) (bool, []string) {
	err := v.schema.Validate(f.Data)
	if err == nil {
		return true, nil
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return false, []string{err.Error()}
	}
	var msgs []string
	collectLeaves(verr, &msgs)
	sort.Strings(msgs)
	if len(msgs) == 0 {
		msgs = []string{verr.Error()}
	}
	return false, msgs
}

func collectLeaves(e *jsonschema.ValidationError, out *[]string) {
	if len(e.Causes) == 0 {
		loc := e.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		*out = append(*out, loc+": "+e.Message)
		return
	}
	for _, c := range e.Causes {
		collectLeaves(c, out)
	}
}
