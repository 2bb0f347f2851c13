package render

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/harunnryd/autopdf/internal/errors"
)

const sampleReport = `# Summary

The core switch on **floor 2** lost its uplink.

## Actions

1. Checked cabling
2. Rebooted switch
   - uplink restored

- follow up with vendor

> Root cause still under review.

---

` + "```\nshow interface eth0\n```\n"

func TestRender_IsDeterministic(t *testing.T) {
	r := New()
	doc := Document{
		Title: "Incident Report - 42",
		Body:  sampleReport,
		Date:  time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}

	first, err := r.Render(doc)
	require.NoError(t, err)
	second, err := r.Render(doc)
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(first.Bytes, []byte("%PDF-")))
	assert.Equal(t, "Incident Report - 42", first.Title)
	assert.Equal(t, first.Bytes, second.Bytes, "identical input must produce identical bytes")
}

func TestRender_DifferentContentDiffers(t *testing.T) {
	r := New()
	date := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	a, err := r.Render(Document{Title: "t", Body: "first", Date: date})
	require.NoError(t, err)
	b, err := r.Render(Document{Title: "t", Body: "second", Date: date})
	require.NoError(t, err)

	assert.NotEqual(t, a.Bytes, b.Bytes)
}

func TestRender_RequiresContent(t *testing.T) {
	_, err := New().Render(Document{Title: "t", Body: "  "})
	assert.ErrorIs(t, err, apperrors.ErrInternal)
}

func TestRender_ZeroDateIsStable(t *testing.T) {
	r := New()
	a, err := r.Render(Document{Title: "t", Body: "Ünïcode — text"})
	require.NoError(t, err)
	b, err := r.Render(Document{Title: "t", Body: "Ünïcode — text"})
	require.NoError(t, err)
	assert.Equal(t, a.Bytes, b.Bytes)
}

func TestParseBlocks(t *testing.T) {
	blocks := parseBlocks([]byte(sampleReport))

	var kinds []blockKind
	for _, b := range blocks {
		kinds = append(kinds, b.kind)
	}
	assert.Equal(t, []blockKind{
		blockHeading, blockParagraph, blockHeading,
		blockListItem, blockListItem, blockListItem, blockListItem,
		blockQuote, blockRule, blockCode,
	}, kinds)

	assert.Equal(t, 1, blocks[0].level)
	assert.Equal(t, "Summary", blocks[0].text)
	assert.Equal(t, "The core switch on floor 2 lost its uplink.", blocks[1].text)
	assert.Equal(t, "1.", blocks[3].mark)
	assert.Equal(t, "2.", blocks[4].mark)
	assert.Equal(t, 1, blocks[5].level, "nested bullet is indented")
	assert.Equal(t, "uplink restored", blocks[5].text)
	assert.Equal(t, "Root cause still under review.", blocks[7].text)
	assert.Equal(t, "show interface eth0", blocks[9].text)
}

func TestParseBlocks_InlineText(t *testing.T) {
	blocks := parseBlocks([]byte("See <https://glpi.example.com> and <b>bold</b> **now**"))
	require.Len(t, blocks, 1)
	assert.Equal(t, blockParagraph, blocks[0].kind)
	assert.Equal(t, "See https://glpi.example.com and bold now", strings.Join(strings.Fields(blocks[0].text), " "))
}

func TestParseDate(t *testing.T) {
	assert.Equal(t, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), ParseDate("2024-03-01 09:00:00"))
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), ParseDate("2024-03-01"))
	assert.True(t, ParseDate("").IsZero())
	assert.True(t, ParseDate("yesterday").IsZero())
}
