package parser

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestRegistryBuiltInParsers(t *testing.T) {
	reg := NewRegistry()
	want := []string{"docx", "md", "pdf", "text", "txt", "xlsx"}
	if got := reg.Formats(); !reflect.DeepEqual(got, want) {
		t.Errorf("Formats = %v, want %v", got, want)
	}
	if _, err := reg.Get("PDF"); err != nil {
		t.Errorf("Get is not case-insensitive: %v", err)
	}
	for _, f := range []string{"pptx", "csv", ""} {
		if _, err := reg.Get(f); !errors.Is(err, ErrUnsupported) {
			t.Errorf("Get(%q) = %v, want ErrUnsupported", f, err)
		}
	}
}

type stubParser struct{ text string }

func (s stubParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	return &ParseResult{Text: s.text}, nil
}
func (s stubParser) SupportedFormats() []string { return []string{"rtf"} }

func TestRegistryCustomParser(t *testing.T) {
	reg := NewRegistry()
	reg.Register("RTF", stubParser{text: "custom"})
	path := filepath.Join(t.TempDir(), "deal.rtf")
	writeFile(t, path, "{\\rtf1}")

	doc, err := reg.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.ID != "deal" || doc.Text != "custom" || doc.Format != "rtf" {
		t.Errorf("doc = %+v", doc)
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "acme.txt"), "Acme Corp agrees to pay Beta LLC $50,000.\r\n\r\n\r\n\r\nGoverned by California law.  ")
	writeFile(t, filepath.Join(dir, "acme.md"), "# Duplicate name")
	writeFile(t, filepath.Join(dir, "nested", "lease.txt"), "Lease agreement.")
	writeFile(t, filepath.Join(dir, "empty.txt"), "   \n ")
	writeFile(t, filepath.Join(dir, "broken.pdf"), "not a pdf")
	writeFile(t, filepath.Join(dir, "notes.csv"), "a,b")
	writeFile(t, filepath.Join(dir, ".hidden.txt"), "secret")
	writeFile(t, filepath.Join(dir, ".git", "HEAD.txt"), "ref")

	docs, failed, err := NewRegistry().LoadDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}

	var ids []string
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	if want := []string{"acme", "acme-txt", "lease"}; !reflect.DeepEqual(ids, want) {
		t.Errorf("ids = %v, want %v", ids, want)
	}
	if got := docs[1].Text; got != "Acme Corp agrees to pay Beta LLC $50,000.\n\nGoverned by California law." {
		t.Errorf("text = %q", got)
	}

	var failedNames []string
	for _, f := range failed {
		failedNames = append(failedNames, filepath.Base(f.Path))
	}
	if want := []string{"broken.pdf", "empty.txt"}; !reflect.DeepEqual(failedNames, want) {
		t.Errorf("failed = %v, want %v", failedNames, want)
	}
	for _, f := range failed {
		if filepath.Base(f.Path) == "empty.txt" && !errors.Is(f.Err, ErrNoText) {
			t.Errorf("empty.txt error = %v, want ErrNoText", f.Err)
		}
	}
}

func TestLoadDirMissing(t *testing.T) {
	_, _, err := NewRegistry().LoadDir(context.Background(), filepath.Join(t.TempDir(), "nope"))
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestLoadDirCancelled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "text")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := NewRegistry().LoadDir(ctx, dir); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestDOCXParser(t *testing.T) {
	path := filepath.Join(t.TempDir(), "msa.docx")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	w, _ := zw.Create("word/document.xml")
	w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>MASTER SERVICES AGREEMENT</w:t></w:r></w:p>
<w:p><w:r><w:t xml:space="preserve">1. Acme Corp </w:t></w:r><w:r><w:t>shall pay</w:t></w:r><w:r><w:tab/><w:t>Beta LLC.</w:t></w:r></w:p>
<w:tbl>
<w:tr><w:tc><w:p><w:r><w:t>Fee</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>USD 50,000</w:t></w:r></w:p></w:tc></w:tr>
</w:tbl>
<w:p><w:r><w:t>2. Governing law: California.</w:t></w:r></w:p>
</w:body>
</w:document>`))
	zw.Close()
	f.Close()

	res, err := (&DOCXParser{}).Parse(context.Background(), path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := "MASTER SERVICES AGREEMENT\n1. Acme Corp shall pay\tBeta LLC.\nFee | USD 50,000\n\n2. Governing law: California."
	if res.Text != want {
		t.Errorf("text = %q\nwant   %q", res.Text, want)
	}
}

func TestDOCXParserMissingDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.docx")
	f, _ := os.Create(path)
	zw := zip.NewWriter(f)
	zw.Create("other.xml")
	zw.Close()
	f.Close()
	if _, err := (&DOCXParser{}).Parse(context.Background(), path); err == nil {
		t.Fatal("expected error")
	}
}

func TestXLSXParser(t *testing.T) {
	path := filepath.Join(t.TempDir(), "register.xlsx")
	x := excelize.NewFile()
	x.SetCellValue("Sheet1", "A1", "Party")
	x.SetCellValue("Sheet1", "B1", "Amount")
	x.SetCellValue("Sheet1", "A2", "Acme Corp")
	x.SetCellValue("Sheet1", "B2", 50000)
	if err := x.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	x.Close()

	res, err := (&XLSXParser{}).Parse(context.Background(), path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if want := "Sheet1\nParty | Amount\nAcme Corp | 50000"; res.Text != want {
		t.Errorf("text = %q, want %q", res.Text, want)
	}
	if res.Pages != 1 {
		t.Errorf("Pages = %d", res.Pages)
	}
}

func TestCleanText(t *testing.T) {
	in := "line one   \r\nline two\n\n\n\n  \nline three\t\n"
	if got := cleanText(in); got != "line one\nline two\n\nline three" {
		t.Errorf("cleanText = %q", got)
	}
	if !strings.Contains(cleanText("a\n\nb"), "\n\n") {
		t.Error("single blank line should be kept")
	}
}
