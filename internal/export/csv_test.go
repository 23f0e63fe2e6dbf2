package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/grupoagenda/leadscan-cli/internal/model"
)

func sampleLeads() []*model.Lead {
	eventDate := time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC)
	return []*model.Lead{
		{
			ID:            "a1",
			Site:          "entradium",
			Kind:          model.LeadKindEvent,
			SourceURL:     "https://entradium.com/e/1",
			Name:          `Sala "El Sol"`,
			RawDateText:   "SÁBADO 15 DE MARZO DE 2025",
			Place:         "Madrid, Centro",
			EventDate:     &eventDate,
			FirstSeenAt:   time.Date(2025, time.March, 1, 10, 0, 0, 0, time.UTC),
			LastScannedAt: time.Date(2025, time.March, 10, 10, 0, 0, 0, time.UTC),
			Status:        model.LeadStatusActive,
			MatchSource:   model.MatchSourceNone,
		},
		{
			ID:            "b2",
			Site:          "eltenedor",
			Kind:          model.LeadKindRestaurant,
			SourceURL:     "https://eltenedor.es/r/9",
			Name:          "Casa Pepe",
			Discount:      "-40%",
			FirstSeenAt:   time.Date(2025, time.February, 20, 9, 0, 0, 0, time.UTC),
			LastScannedAt: time.Date(2025, time.March, 10, 10, 0, 0, 0, time.UTC),
			Status:        model.LeadStatusActive,
			MatchSource:   model.MatchSourceManual,

			MatchedBusinessID: "biz-7",
			MatchConfidence:   1.0,
		},
	}
}

func TestWriteCSVQuotesEveryValue(t *testing.T) {
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleLeads(), now))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)

	// Header and every field quoted.
	assert.True(t, strings.HasPrefix(lines[0], `"Site","Kind","Name"`))
	for _, line := range lines {
		assert.True(t, strings.HasPrefix(line, `"`))
		assert.True(t, strings.HasSuffix(line, `"`))
	}

	// Internal quotes doubled.
	assert.Contains(t, lines[1], `"Sala ""El Sol"""`)

	// Comma inside a value stays inside its quotes.
	assert.Contains(t, lines[1], `"Madrid, Centro"`)

	// ISO date plus derived days-until (Mar 10 -> Mar 15 is 5 days).
	assert.Contains(t, lines[1], `"2025-03-15","5"`)

	// Undated restaurant lead leaves both date columns empty.
	assert.Contains(t, lines[2], `"","",`)
	assert.Contains(t, lines[2], `"manual"`)
	assert.Contains(t, lines[2], `"1.00"`)
}

func TestDaysUntilPastDateNegative(t *testing.T) {
	now := time.Date(2025, time.March, 10, 23, 0, 0, 0, time.UTC)
	past := time.Date(2025, time.March, 8, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "-2", daysUntil(&past, now))
	assert.Equal(t, "0", daysUntil(&now, now))
	assert.Equal(t, "", daysUntil(nil, now))
}

func TestWriteXLSXSameRowsAsCSV(t *testing.T) {
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, sampleLeads(), now))

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)

	sheet := f.Sheets[0]
	require.Len(t, sheet.Rows, 3)
	assert.Equal(t, "Site", sheet.Rows[0].Cells[0].String())
	assert.Equal(t, "entradium", sheet.Rows[1].Cells[0].String())
	assert.Equal(t, `Sala "El Sol"`, sheet.Rows[1].Cells[2].String())
	assert.Equal(t, "Casa Pepe", sheet.Rows[2].Cells[2].String())
}
