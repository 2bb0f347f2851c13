package formatter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/harunnryd/autopdf/internal/incident"
	"github.com/harunnryd/autopdf/internal/objectstore"
)

func TestFormatObjects(t *testing.T) {
	f := NewTableFormatter()
	assert.Equal(t, "No reports found", f.FormatObjects(nil))

	out := f.FormatObjects([]objectstore.ObjectInfo{{
		Key:          "Network Issue/42/abc.pdf",
		Size:         2048,
		LastModified: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}})
	assert.Contains(t, out, "Network Issue/42/abc.pdf")
	assert.Contains(t, out, "2.0 KiB")
	assert.Contains(t, out, "2024-03-01 10:00:00")
}

func TestFormatEntries(t *testing.T) {
	f := NewTableFormatter()
	assert.Equal(t, "No matching reports", f.FormatEntries(nil))

	out := f.FormatEntries([]incident.IndexEntry{{
		IncidentID: 42,
		Category:   incident.CategoryPassword,
		Title:      "Locked out",
		Date:       "2024-03-01 10:00:00",
		ObjectKey:  "Password Reset/42/abc.pdf",
	}})
	assert.Contains(t, out, "42")
	assert.Contains(t, out, "Password Reset")
	assert.Contains(t, out, "Locked out")
}

func TestHumanSize(t *testing.T) {
	assert.Equal(t, "512 B", humanSize(512))
	assert.Equal(t, "1.5 KiB", humanSize(1536))
	assert.Equal(t, "3.0 MiB", humanSize(3*1024*1024))
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", truncateString("short", 10))
	assert.Equal(t, "abcdefg...", truncateString("abcdefghijklmnop", 10))
}
