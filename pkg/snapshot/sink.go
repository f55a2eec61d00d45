package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Sink persists a finished export.
type Sink interface {
	Write(ctx context.Context, m *Marketplace) error
}

// Format is a file serialization.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatForPath picks JSON for .json files and YAML otherwise.
func FormatForPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// Encode serializes m.
func Encode(m *Marketplace, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		raw, err := m.MarshalJSON()
		if err != nil {
			return nil, err
		}
		var out bytes.Buffer
		if err := json.Indent(&out, raw, "", "  "); err != nil {
			return nil, err
		}
		out.WriteByte('\n')
		return out.Bytes(), nil
	case FormatYAML:
		var out bytes.Buffer
		enc := yaml.NewEncoder(&out)
		enc.SetIndent(2)
		if err := enc.Encode(m); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return out.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown snapshot format %q", format)
	}
}

// FileSink writes the snapshot to a file. The file is replaced atomically.
type FileSink struct {
	Path   string
	Format Format // empty: derived from Path
}

// NewFileSink creates a sink for path.
func NewFileSink(path string) *FileSink {
	return &FileSink{Path: path, Format: FormatForPath(path)}
}

// Write encodes m and replaces the file.
func (s *FileSink) Write(ctx context.Context, m *Marketplace) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	format := s.Format
	if format == "" {
		format = FormatForPath(s.Path)
	}
	data, err := Encode(m, format)
	if err != nil {
		SnapshotErrors.WithLabelValues("file", "encode").Inc()
		return fmt.Errorf("encode snapshot: %w", err)
	}

	dir := filepath.Dir(s.Path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.Path)+".*")
	if err != nil {
		SnapshotErrors.WithLabelValues("file", "write").Inc()
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	// CreateTemp opens 0600; the seed file is meant to be shared.
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		SnapshotErrors.WithLabelValues("file", "write").Inc()
		return fmt.Errorf("chmod %s: %w", tmp.Name(), err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		SnapshotErrors.WithLabelValues("file", "write").Inc()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		SnapshotErrors.WithLabelValues("file", "write").Inc()
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		SnapshotErrors.WithLabelValues("file", "write").Inc()
		return fmt.Errorf("rename to %s: %w", s.Path, err)
	}

	SnapshotWrites.WithLabelValues("file").Inc()
	SnapshotBytes.WithLabelValues("file").Set(float64(len(data)))
	return nil
}

// MultiSink writes to every sink in order and stops at the first error.
type MultiSink []Sink

// Write implements Sink.
func (ms MultiSink) Write(ctx context.Context, m *Marketplace) error {
	for _, s := range ms {
		if err := s.Write(ctx, m); err != nil {
			return err
		}
	}
	return nil
}
