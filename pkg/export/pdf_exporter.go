package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// CertificateDocument is the content of a guide allocation certificate.
type CertificateDocument struct {
	Title             string
	Institution       string
	CertificateNumber string
	ReferenceNumber   string
	CandidateName     string
	GuideName         string
	IssuedAt          time.Time
	Body              string
}

// PDFExporter renders certificates with gofpdf.
type PDFExporter struct {
	institution string
}

// NewPDFExporter constructs a PDF exporter; institution is printed in the header.
func NewPDFExporter(institution string) *PDFExporter {
	return &PDFExporter{institution: institution}
}

// RenderCertificate creates a single page certificate.
func (e *PDFExporter) RenderCertificate(doc CertificateDocument) ([]byte, error) {
	if doc.CertificateNumber == "" {
		return nil, fmt.Errorf("certificate number is required")
	}
	institution := doc.Institution
	if institution == "" {
		institution = e.institution
	}
	title := doc.Title
	if title == "" {
		title = "Guide Allocation Certificate"
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 25, 20)
	pdf.AddPage()

	if institution != "" {
		pdf.SetFont("Arial", "B", 16)
		pdf.CellFormat(0, 10, institution, "", 1, "C", false, 0, "")
	}
	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 10, strings.ToUpper(title), "", 1, "C", false, 0, "")
	pdf.Ln(8)

	pdf.SetFont("Arial", "", 11)
	fields := [][2]string{
		{"Certificate No.", doc.CertificateNumber},
		{"Application Ref.", doc.ReferenceNumber},
		{"Candidate", doc.CandidateName},
		{"Guide", doc.GuideName},
		{"Issued On", doc.IssuedAt.Format("02 Jan 2006")},
	}
	for _, field := range fields {
		if field[1] == "" {
			continue
		}
		pdf.CellFormat(50, 8, field[0], "1", 0, "", false, 0, "")
		pdf.CellFormat(0, 8, field[1], "1", 1, "", false, 0, "")
	}

	if doc.Body != "" {
		pdf.Ln(8)
		pdf.MultiCell(0, 6, doc.Body, "", "", false)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
