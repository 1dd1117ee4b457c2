package parser

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

type DOCXParser struct{}

func (p *DOCXParser) SupportedFormats() []string { return []string{"docx"} }

func (p *DOCXParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening DOCX: %w", err)
	}
	defer r.Close()

	var docFile *zip.File
	for _, f := range r.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return nil, fmt.Errorf("word/document.xml not found in DOCX")
	}

	rc, err := docFile.Open()
	if err != nil {
		return nil, fmt.Errorf("opening document.xml: %w", err)
	}
	defer rc.Close()

	text, err := docxText(rc)
	if err != nil {
		return nil, fmt.Errorf("parsing DOCX XML: %w", err)
	}
	return &ParseResult{Text: cleanText(text), Method: "native"}, nil
}

// docxText walks WordprocessingML and returns its text with one line per
// paragraph. Table rows become a single line of " | "-separated cells.
func docxText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var (
		b      strings.Builder
		inText bool
		runs   int
		tables int
		cell   strings.Builder
		cells  []string
	)
	out := func(s string) {
		if tables > 0 {
			cell.WriteString(s)
		} else {
			b.WriteString(s)
		}
	}

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "r":
				runs++
			case "t":
				inText = true
			case "tab":
				if runs > 0 {
					out("\t")
				}
			case "br", "cr":
				if runs > 0 {
					out("\n")
				}
			case "tbl":
				tables++
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "r":
				runs--
			case "t":
				inText = false
			case "p":
				if tables > 0 {
					cell.WriteString(" ")
				} else {
					b.WriteString("\n")
				}
			case "tc":
				cells = append(cells, strings.TrimSpace(cell.String()))
				cell.Reset()
			case "tr":
				b.WriteString(strings.Join(cells, " | "))
				b.WriteString("\n")
				cells = cells[:0]
			case "tbl":
				tables--
				b.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				out(string(t))
			}
		}
	}
	return b.String(), nil
}
