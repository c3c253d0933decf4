// Package sink appends extracted records to per-category flat files.
package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/JakeFAU/registry-crawler/internal/crawler"
)

// Defaults matching the reference output layout.
const (
	DefaultPattern   = "division_%s_data.csv"
	DefaultDelimiter = ","
)

// ErrClosed is returned by Append after Close.
var ErrClosed = errors.New("record sink closed")

// Config controls where and how records are written.
type Config struct {
	Dir       string
	Pattern   string
	Delimiter string
}

// FileSink implements crawler.RecordSink with one append-only file per
// output. Each record becomes exactly one write on an O_APPEND handle, and
// writers to the same output are serialized by a per-output mutex.
type FileSink struct {
	dir       string
	pattern   string
	delimiter string
	logger    *zap.Logger

	mu      sync.Mutex
	outputs map[string]*output
	closed  bool
}

type output struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// New creates the output directory and returns an empty sink.
func New(cfg Config, logger *zap.Logger) (*FileSink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(cfg.Dir) == "" {
		cfg.Dir = "."
	}
	if cfg.Pattern == "" {
		cfg.Pattern = DefaultPattern
	}
	if cfg.Delimiter == "" {
		cfg.Delimiter = DefaultDelimiter
	}
	if strings.Count(cfg.Pattern, "%s") != 1 {
		return nil, fmt.Errorf("output pattern %q must contain exactly one %%s", cfg.Pattern)
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", cfg.Dir, err)
	}
	return &FileSink{
		dir:       cfg.Dir,
		pattern:   cfg.Pattern,
		delimiter: cfg.Delimiter,
		logger:    logger,
		outputs:   make(map[string]*output),
	}, nil
}

// Path returns the file an output is written to.
func (s *FileSink) Path(outputID string) string {
	return filepath.Join(s.dir, crawler.OutputName(s.pattern, outputID))
}

// Append writes record as one delimited line to the output's file.
func (s *FileSink) Append(ctx context.Context, outputID string, record crawler.RowRecord) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("append canceled: %w", err)
	}
	out, err := s.output(outputID)
	if err != nil {
		return err
	}
	line := FormatLine(record, s.delimiter)

	out.mu.Lock()
	defer out.mu.Unlock()
	n, err := out.file.Write(line)
	if err != nil {
		return fmt.Errorf("append to %s: %w", out.path, err)
	}
	if n != len(line) {
		return fmt.Errorf("append to %s: %w", out.path, io.ErrShortWrite)
	}
	return nil
}

func (s *FileSink) output(outputID string) (*output, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if out, ok := s.outputs[outputID]; ok {
		return out, nil
	}
	path := s.Path(outputID)
	// #nosec G304 -- path is derived from the configured output dir and a sanitized id.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output %s: %w", path, err)
	}
	s.logger.Debug("opened output", zap.String("output", outputID), zap.String("path", path))
	out := &output{path: path, file: f}
	s.outputs[outputID] = out
	return out, nil
}

// Close releases every open handle. Further appends fail with ErrClosed.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	var err error
	for id, out := range s.outputs {
		out.mu.Lock()
		if cerr := out.file.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close output %s: %w", id, cerr))
		}
		out.mu.Unlock()
	}
	return err
}

// FormatLine joins the record's columns with delim and terminates the line.
// Values are written verbatim: a delimiter inside a field is not escaped.
func FormatLine(record crawler.RowRecord, delim string) []byte {
	var b strings.Builder
	for i, col := range record.Columns() {
		if i > 0 {
			b.WriteString(delim)
		}
		b.WriteString(col)
	}
	b.WriteByte('\n')
	return []byte(b.String())
}
