// Package export renders lead snapshots as CSV and XLSX tables. The CSV
// format quotes every value so downstream spreadsheet imports never
// misread free-text Spanish fields containing commas or quotes.
package export

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/grupoagenda/leadscan-cli/internal/model"
)

// leadColumns defines the ordered export columns shared by CSV and XLSX.
var leadColumns = []string{
	"Site",
	"Kind",
	"Name",
	"Source URL",
	"Event Date",
	"Days Until",
	"Raw Date Text",
	"Place",
	"Cuisine",
	"Promoter",
	"Discount",
	"Status",
	"First Seen",
	"Last Scanned",
	"Matched Business",
	"Match Confidence",
	"Match Source",
}

// WriteCSV renders leads as UTF-8 CSV: header row, one row per lead,
// every value quoted with internal quotes doubled. The "Days Until"
// column is derived from now at export time, never persisted.
func WriteCSV(w io.Writer, leads []*model.Lead, now time.Time) error {
	if err := writeRow(w, leadColumns); err != nil {
		return eris.Wrap(err, "export: write header")
	}
	for _, lead := range leads {
		if err := writeRow(w, buildLeadRow(lead, now)); err != nil {
			return eris.Wrapf(err, "export: write row %s", lead.SourceURL)
		}
	}
	return nil
}

// writeRow joins quoted values with commas. encoding/csv only quotes
// when it must, so the all-quoted contract is written directly.
func writeRow(w io.Writer, values []string) error {
	var sb strings.Builder
	for i, v := range values {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteByte('"')
		sb.WriteString(strings.ReplaceAll(v, `"`, `""`))
		sb.WriteByte('"')
	}
	sb.WriteByte('\n')
	_, err := io.WriteString(w, sb.String())
	return err
}

// buildLeadRow maps a lead to its export columns, in leadColumns order.
func buildLeadRow(lead *model.Lead, now time.Time) []string {
	return []string{
		lead.Site,
		string(lead.Kind),
		lead.Name,
		lead.SourceURL,
		formatDate(lead.EventDate),
		daysUntil(lead.EventDate, now),
		lead.RawDateText,
		lead.Place,
		lead.Cuisine,
		lead.Promoter,
		lead.Discount,
		string(lead.Status),
		lead.FirstSeenAt.UTC().Format(time.RFC3339),
		lead.LastScannedAt.UTC().Format(time.RFC3339),
		lead.MatchedBusinessID,
		formatConfidence(lead.MatchConfidence),
		string(lead.MatchSource),
	}
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}

// daysUntil counts whole calendar days from now's date to the event
// date. Past dates yield negative counts; undated leads yield empty.
func daysUntil(eventDate *time.Time, now time.Time) string {
	if eventDate == nil {
		return ""
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	event := eventDate.UTC()
	eventDay := time.Date(event.Year(), event.Month(), event.Day(), 0, 0, 0, 0, time.UTC)
	days := int(math.Round(eventDay.Sub(today).Hours() / 24))
	return strconv.Itoa(days)
}

func formatConfidence(c float64) string {
	if c == 0 {
		return ""
	}
	return fmt.Sprintf("%.2f", c)
}
