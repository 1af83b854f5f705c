package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
)

// Format is the on-disk encoding of a report file.
type Format int

const (
	FormatJSON Format = iota
	FormatJSONZstd
	FormatJSONGzip
)

// FormatFor picks the encoding from the file name: ".json.zst" and ".json.gz"
// are compressed, anything else is plain JSON.
func FormatFor(path string) Format {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".zst"):
		return FormatJSONZstd
	case strings.HasSuffix(lower, ".gz"):
		return FormatJSONGzip
	default:
		return FormatJSON
	}
}

// Write stores the report at path. The file is written to a temp file in the
// same folder and renamed into place, so a reader never sees a partial report.
func (r *Report) Write(path string) (retErr error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create report folder %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "pgl-sync-report-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp report file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if retErr != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if err := r.encode(tmp, FormatFor(path)); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp report file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to move report into place: %w", err)
	}
	return nil
}

func (r *Report) encode(w io.Writer, format Format) error {
	var cw io.WriteCloser
	switch format {
	case FormatJSONZstd:
		zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return fmt.Errorf("failed to create zstd writer: %w", err)
		}
		cw = zw
	case FormatJSONGzip:
		gw, err := pgzip.NewWriterLevel(w, pgzip.DefaultCompression)
		if err != nil {
			return fmt.Errorf("failed to create gzip writer: %w", err)
		}
		cw = gw
	}

	out := w
	if cw != nil {
		out = cw
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		if cw != nil {
			cw.Close()
		}
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if cw != nil {
		if err := cw.Close(); err != nil {
			return fmt.Errorf("failed to flush compressed report: %w", err)
		}
	}
	return nil
}

// Read loads a report written by Write.
func Read(path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open report %s: %w", path, err)
	}
	defer f.Close()

	var in io.Reader = f
	switch FormatFor(path) {
	case FormatJSONZstd:
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		defer zr.Close()
		in = zr
	case FormatJSONGzip:
		gr, err := pgzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gr.Close()
		in = gr
	}

	var r Report
	if err := json.NewDecoder(in).Decode(&r); err != nil {
		return nil, fmt.Errorf("failed to decode report %s: %w", path, err)
	}
	return &r, nil
}
