package persist

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrVersion is returned for layouts this package cannot read.
var ErrVersion = errors.New("unsupported project version")

// Format selects an encoding.
type Format int

const (
	JSON Format = iota
	YAML
)

func (f Format) String() string {
	if f == YAML {
		return "yaml"
	}
	return "json"
}

// FormatOf picks the format from a file extension; anything but .yaml
// and .yml is JSON.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAML
	}
	return JSON
}

func checkVersion(v int) error {
	if v < 1 || v > Version {
		return fmt.Errorf("%w: %d (this build reads 1 through %d)", ErrVersion, v, Version)
	}
	return nil
}

// Marshal encodes rec. JSON output is indented with two spaces and ends
// in a newline so saved projects diff cleanly.
func Marshal(rec *Record, f Format) ([]byte, error) {
	var buf bytes.Buffer
	switch f {
	case YAML:
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
	default:
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("encode json: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes and version-checks a record.
func Unmarshal(data []byte, f Format) (*Record, error) {
	var rec Record
	switch f {
	case YAML:
		if err := yaml.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	}
	if err := checkVersion(rec.Version); err != nil {
		return nil, err
	}
	if rec.Version < 2 {
		rec.Rollback = nil
	}
	return &rec, nil
}

// Save writes rec to path in the format its extension selects.
func Save(path string, rec *Record) error {
	data, err := Marshal(rec, FormatOf(path))
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("save project: %w", err)
	}
	return nil
}

// Load reads a record from path.
func Load(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	rec, err := Unmarshal(data, FormatOf(path))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", filepath.Base(path), err)
	}
	return rec, nil
}
