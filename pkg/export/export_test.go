package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVExporterPadsShortRows(t *testing.T) {
	out, err := NewCSVExporter().Render(Table{
		Headers: []string{"reference", "status", "candidate_type"},
		Rows:    [][]string{{"PET-2026-A", "SUBMITTED"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "reference,status,candidate_type\nPET-2026-A,SUBMITTED,\n", string(out))
}

func TestCSVExporterRejectsWideRows(t *testing.T) {
	_, err := NewCSVExporter().Render(Table{Headers: []string{"a"}, Rows: [][]string{{"1", "2"}}})
	require.Error(t, err)
}

func TestRenderCertificate(t *testing.T) {
	out, err := NewPDFExporter("Graduate School").RenderCertificate(CertificateDocument{
		CertificateNumber: "GAC-2026-1234",
		ReferenceNumber:   "PET-2026-XYZ",
		GuideName:         "g1",
		IssuedAt:          time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))

	_, err = NewPDFExporter("").RenderCertificate(CertificateDocument{})
	require.Error(t, err)
}
