// Package render lays out drafted report text as a PDF document.
package render

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	apperrors "github.com/harunnryd/autopdf/internal/errors"
	"github.com/harunnryd/autopdf/internal/incident"
)

const (
	fontFamily = "Helvetica"
	codeFamily = "Courier"
	lineHeight = 5.5
	creator    = "AutoPDF"
)

// glpiTimeLayout is the timestamp format of GLPI date fields.
const glpiTimeLayout = "2006-01-02 15:04:05"

// Document is the input of one rendering.
type Document struct {
	Title string
	// Body is the drafted report text; markdown structure is honoured.
	Body string
	// Date is written as the PDF creation and modification date. Identical
	// documents render to identical bytes.
	Date time.Time
}

// Renderer produces deterministic PDF bytes.
type Renderer struct{}

func New() *Renderer {
	return &Renderer{}
}

// Render lays out doc and returns the PDF.
func (r *Renderer) Render(doc Document) (incident.GeneratedReport, error) {
	if strings.TrimSpace(doc.Body) == "" {
		return incident.GeneratedReport{}, apperrors.Internal("content is required for PDF generation")
	}
	date := doc.Date
	if date.IsZero() {
		date = time.Unix(0, 0)
	}
	date = date.UTC()

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCatalogSort(true)
	pdf.SetCreationDate(date)
	pdf.SetModificationDate(date)
	pdf.SetCreator(creator, true)
	pdf.SetTitle(doc.Title, true)
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)

	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont(fontFamily, "I", 8)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(0, 10, fmt.Sprintf("%s - page %d", tr(doc.Title), pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()
	pdf.SetFont(fontFamily, "B", 18)
	pdf.SetTextColor(0, 0, 0)
	pdf.MultiCell(0, 9, tr(doc.Title), "", "L", false)
	pdf.Ln(4)

	for _, b := range parseBlocks([]byte(doc.Body)) {
		writeBlock(pdf, tr, b)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return incident.GeneratedReport{}, apperrors.WrapWithCategory(err, "render pdf", apperrors.ErrInternal)
	}
	return incident.GeneratedReport{Bytes: buf.Bytes(), Title: doc.Title}, nil
}

func writeBlock(pdf *fpdf.Fpdf, tr func(string) string, b block) {
	pdf.SetTextColor(0, 0, 0)
	left, _, _, _ := pdf.GetMargins()

	switch b.kind {
	case blockHeading:
		size := 16.0 - float64(b.level)*1.5
		if size < 10 {
			size = 10
		}
		pdf.Ln(2)
		pdf.SetFont(fontFamily, "B", size)
		pdf.MultiCell(0, size*0.5, tr(b.text), "", "L", false)
		pdf.Ln(1)
	case blockListItem:
		indent := 5.0 * float64(b.level+1)
		pdf.SetFont(fontFamily, "", 11)
		pdf.SetX(left + indent)
		mark := b.mark
		if mark == "-" {
			mark = "•"
		}
		pdf.CellFormat(6, lineHeight, tr(mark), "", 0, "L", false, 0, "")
		pdf.MultiCell(0, lineHeight, tr(b.text), "", "L", false)
	case blockCode:
		pdf.SetFont(codeFamily, "", 9)
		pdf.SetFillColor(242, 242, 242)
		pdf.MultiCell(0, 4.5, tr(b.text), "", "L", true)
		pdf.Ln(2)
	case blockQuote:
		pdf.SetFont(fontFamily, "I", 11)
		pdf.SetTextColor(80, 80, 80)
		pdf.SetX(left + 6)
		pdf.MultiCell(0, lineHeight, tr(b.text), "", "L", false)
		pdf.Ln(2)
	case blockRule:
		y := pdf.GetY() + 2
		w, _ := pdf.GetPageSize()
		_, _, right, _ := pdf.GetMargins()
		pdf.SetDrawColor(180, 180, 180)
		pdf.Line(left, y, w-right, y)
		pdf.Ln(5)
	default:
		pdf.SetFont(fontFamily, "", 11)
		pdf.MultiCell(0, lineHeight, tr(b.text), "", "L", false)
		pdf.Ln(2)
	}
}

// ParseDate reads a GLPI timestamp; unparsable values give the zero time.
func ParseDate(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{glpiTimeLayout, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}
