// Package docextract pulls plain text out of ticket attachments.
package docextract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/harunnryd/autopdf/internal/clean"
	"github.com/harunnryd/autopdf/internal/logger"
)

// Format is the detected attachment format.
type Format string

const (
	FormatPDF     Format = "pdf"
	FormatDOCX    Format = "docx"
	FormatHTML    Format = "html"
	FormatText    Format = "text"
	FormatUnknown Format = "unknown"
)

// ErrPDFToolNotFound is returned when pdftotext is not installed.
var ErrPDFToolNotFound = errors.New("pdftotext not found: install poppler-utils to extract PDF attachments")

// CommandRunner runs an external command with data on stdin.
type CommandRunner interface {
	Run(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
	if _, err := exec.LookPath(name); err != nil {
		return nil, ErrPDFToolNotFound
	}
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(stdin)
	return cmd.Output()
}

// Extractor converts attachment bytes to text. Extraction never fails the
// caller: unsupported or broken documents yield empty text and a warning.
type Extractor struct {
	runner  CommandRunner
	pdfTool string
	timeout time.Duration
}

func New(pdfTool string, timeout time.Duration) *Extractor {
	return NewWithRunner(execRunner{}, pdfTool, timeout)
}

// NewWithRunner injects the command runner used for PDF extraction.
func NewWithRunner(runner CommandRunner, pdfTool string, timeout time.Duration) *Extractor {
	if pdfTool == "" {
		pdfTool = "pdftotext"
	}
	return &Extractor{runner: runner, pdfTool: pdfTool, timeout: timeout}
}

// Text returns the extracted text of data, or "" when nothing can be extracted.
func (e *Extractor) Text(ctx context.Context, data []byte) string {
	if len(data) == 0 {
		return ""
	}
	format := Detect(data)
	text, err := e.extract(ctx, format, data)
	if err != nil {
		logger.FromContext(ctx).Warn("Document text extraction failed", "format", format, "error", err)
		return ""
	}
	return strings.TrimSpace(text)
}

func (e *Extractor) extract(ctx context.Context, format Format, data []byte) (string, error) {
	switch format {
	case FormatPDF:
		return e.pdf(ctx, data)
	case FormatDOCX:
		return docx(data)
	case FormatHTML:
		return clean.HTML(string(data)), nil
	case FormatText:
		return string(data), nil
	default:
		return "", fmt.Errorf("unsupported document format")
	}
}

// Detect identifies the format of data by its leading bytes.
func Detect(data []byte) Format {
	switch {
	case bytes.HasPrefix(data, []byte("%PDF-")):
		return FormatPDF
	case bytes.HasPrefix(data, []byte("PK\x03\x04")):
		if isDOCX(data) {
			return FormatDOCX
		}
		return FormatUnknown
	}

	switch ct := http.DetectContentType(data); {
	case strings.HasPrefix(ct, "text/html"):
		return FormatHTML
	case strings.HasPrefix(ct, "text/"):
		return FormatText
	}
	if utf8.Valid(data) && !bytes.ContainsRune(data, 0) {
		return FormatText
	}
	return FormatUnknown
}

func (e *Extractor) pdf(ctx context.Context, data []byte) (string, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	out, err := e.runner.Run(ctx, data, e.pdfTool, "-layout", "-enc", "UTF-8", "-", "-")
	if err != nil {
		return "", fmt.Errorf("pdftotext failed: %w", err)
	}
	return string(out), nil
}

func isDOCX(data []byte) bool {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return false
	}
	for _, f := range reader.File {
		if f.Name == "word/document.xml" {
			return true
		}
	}
	return false
}

// docx reads paragraph text from word/document.xml.
func docx(data []byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	for _, f := range reader.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open document.xml: %w", err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("read document.xml: %w", err)
		}
		return parseDocumentXML(content)
	}
	return "", fmt.Errorf("docx without word/document.xml")
}

type documentXML struct {
	Body struct {
		Paragraphs []struct {
			Runs []struct {
				Text []struct {
					Content string `xml:",chardata"`
				} `xml:"t"`
			} `xml:"r"`
		} `xml:"p"`
	} `xml:"body"`
}

func parseDocumentXML(content []byte) (string, error) {
	var doc documentXML
	if err := xml.Unmarshal(content, &doc); err != nil {
		return "", fmt.Errorf("parse document.xml: %w", err)
	}

	lines := make([]string, 0, len(doc.Body.Paragraphs))
	for _, p := range doc.Body.Paragraphs {
		var b strings.Builder
		for _, r := range p.Runs {
			for _, t := range r.Text {
				b.WriteString(t.Content)
			}
		}
		lines = append(lines, b.String())
	}
	return strings.Join(lines, "\n"), nil
}
