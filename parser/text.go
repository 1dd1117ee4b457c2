package parser

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// TextParser handles plain text files.
type TextParser struct{}

func (p *TextParser) SupportedFormats() []string { return []string{"txt", "md", "text"} }

func (p *TextParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading text file: %w", err)
	}
	text := strings.ToValidUTF8(string(data), "\uFFFD")
	return &ParseResult{Text: cleanText(text), Method: "native"}, nil
}
