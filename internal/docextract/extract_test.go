package docextract

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRunner struct {
	output []byte
	err    error
	stdin  []byte
	name   string
}

func (m *mockRunner) Run(_ context.Context, stdin []byte, name string, _ ...string) ([]byte, error) {
	m.stdin = stdin
	m.name = name
	return m.output, m.err
}

func buildDOCX(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

const sampleDocumentXML = `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Switch rebooted</w:t></w:r></w:p>
    <w:p><w:r><w:t>Uplink </w:t></w:r><w:r><w:t>restored</w:t></w:r></w:p>
  </w:body>
</w:document>`

func TestDetect(t *testing.T) {
	assert.Equal(t, FormatPDF, Detect([]byte("%PDF-1.7 ...")))
	assert.Equal(t, FormatDOCX, Detect(buildDOCX(t, sampleDocumentXML)))
	assert.Equal(t, FormatHTML, Detect([]byte("<html><body>hi</body></html>")))
	assert.Equal(t, FormatText, Detect([]byte("plain log line\nsecond line")))
	assert.Equal(t, FormatUnknown, Detect([]byte{0x89, 'P', 'N', 'G', 0, 0, 0, 0x0d}))
}

func TestText_DOCX(t *testing.T) {
	e := NewWithRunner(&mockRunner{}, "", 0)
	text := e.Text(context.Background(), buildDOCX(t, sampleDocumentXML))
	assert.Equal(t, "Switch rebooted\nUplink restored", text)
}

func TestText_PDFUsesRunner(t *testing.T) {
	runner := &mockRunner{output: []byte("  Incident log\n")}
	e := NewWithRunner(runner, "", 0)

	data := []byte("%PDF-1.4 fake")
	assert.Equal(t, "Incident log", e.Text(context.Background(), data))
	assert.Equal(t, "pdftotext", runner.name)
	assert.Equal(t, data, runner.stdin)
}

func TestText_PDFRunnerFailureYieldsEmpty(t *testing.T) {
	e := NewWithRunner(&mockRunner{err: errors.New("pdftotext crashed")}, "", 0)
	assert.Equal(t, "", e.Text(context.Background(), []byte("%PDF-1.4 fake")))
}

func TestText_HTMLAndPlain(t *testing.T) {
	e := NewWithRunner(&mockRunner{}, "", 0)
	assert.Equal(t, "Title body", e.Text(context.Background(), []byte("<html><h1>Title</h1><p>body</p></html>")))
	assert.Equal(t, "free text", e.Text(context.Background(), []byte(" free text \n")))
}

func TestText_UnknownAndEmpty(t *testing.T) {
	e := NewWithRunner(&mockRunner{}, "", 0)
	assert.Equal(t, "", e.Text(context.Background(), nil))
	assert.Equal(t, "", e.Text(context.Background(), []byte{0x89, 'P', 'N', 'G', 0, 0, 0, 0x0d}))
	assert.Equal(t, "", e.Text(context.Background(), []byte("PK\x03\x04 broken zip")))
}
