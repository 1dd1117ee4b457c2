// Package parser loads contract source files into plain text.
package parser

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrUnsupported is returned for file formats without a parser.
	ErrUnsupported = errors.New("parser: unsupported format")

	// ErrNoText is returned when a file parses but contains no text, such
	// as a scanned PDF without a text layer.
	ErrNoText = errors.New("parser: no extractable text")
)

// Document is one source contract: a stable identifier and its raw text.
type Document struct {
	ID     string `json:"id"`
	Path   string `json:"path,omitempty"`
	Format string `json:"format,omitempty"`
	Text   string `json:"-"`
}

// ParseResult is what a parser produces from a document file.
type ParseResult struct {
	Text   string
	Pages  int // pages or sheets read, 0 for flat text
	Method string
}

// Parser can parse a specific document format.
type Parser interface {
	Parse(ctx context.Context, path string) (*ParseResult, error)
	SupportedFormats() []string
}

var blankRunRe = regexp.MustCompile(`\n[ \t]*\n(?:[ \t]*\n)+`)

// cleanText normalizes line endings, strips trailing spaces and collapses
// runs of blank lines.
func cleanText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t\u00a0")
	}
	s = strings.Join(lines, "\n")
	s = blankRunRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
