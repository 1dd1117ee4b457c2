package parser

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/brunobiangulo/contractgraph/contract"
)

// Registry maps file extensions to parsers.
type Registry struct {
	parsers map[string]Parser
}

// NewRegistry returns a registry with the built-in text, PDF, DOCX and
// XLSX parsers.
func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[string]Parser)}
	for _, p := range []Parser{&TextParser{}, &PDFParser{}, &DOCXParser{}, &XLSXParser{}} {
		for _, f := range p.SupportedFormats() {
			r.parsers[f] = p
		}
	}
	return r
}

// Get returns the parser for format, an extension without the dot.
func (r *Registry) Get(format string) (Parser, error) {
	p, ok := r.parsers[strings.ToLower(format)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, format)
	}
	return p, nil
}

// Register adds or replaces the parser for format.
func (r *Registry) Register(format string, p Parser) {
	r.parsers[strings.ToLower(format)] = p
}

// Formats lists the registered formats in sorted order.
func (r *Registry) Formats() []string {
	out := make([]string, 0, len(r.parsers))
	for f := range r.parsers {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Load parses a single file into a Document identified by its file name.
func (r *Registry) Load(ctx context.Context, path string) (Document, error) {
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	p, err := r.Get(format)
	if err != nil {
		return Document{}, err
	}

	start := time.Now()
	res, err := p.Parse(ctx, path)
	if err != nil {
		return Document{}, err
	}
	if strings.TrimSpace(res.Text) == "" {
		return Document{}, ErrNoText
	}
	slog.Debug("parser: loaded", "path", path, "format", format,
		"pages", res.Pages, "chars", len(res.Text), "elapsed", time.Since(start).Round(time.Millisecond))

	return Document{ID: contract.FileID(path), Path: path, Format: format, Text: res.Text}, nil
}

// Failure is a file that could not be loaded.
type Failure struct {
	Path string `json:"path"`
	Err  error  `json:"-"`
}

// LoadDir loads every supported file under dir in lexical path order.
// Hidden files and unsupported formats are skipped. Files that fail to
// parse are reported in failed rather than aborting the walk; the error
// is non-nil only when dir itself cannot be read or ctx is done.
// Identifiers that collide are disambiguated with the format suffix.
func (r *Registry) LoadDir(ctx context.Context, dir string) (docs []Document, failed []Failure, err error) {
	seen := make(map[string]int)
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == dir {
				return walkErr
			}
			failed = append(failed, Failure{Path: path, Err: walkErr})
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && path != dir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		doc, err := r.Load(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if isUnsupported(err) {
				slog.Debug("parser: skipping unsupported file", "path", path)
				return nil
			}
			slog.Warn("parser: failed to load", "path", path, "error", err)
			failed = append(failed, Failure{Path: path, Err: err})
			return nil
		}

		seen[doc.ID]++
		if n := seen[doc.ID]; n > 1 {
			doc.ID = fmt.Sprintf("%s-%s", doc.ID, doc.Format)
			if seen[doc.ID]++; seen[doc.ID] > 1 {
				doc.ID = fmt.Sprintf("%s-%d", doc.ID, n)
			}
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("loading %s: %w", dir, err)
	}
	return docs, failed, nil
}

func isUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupported)
}
