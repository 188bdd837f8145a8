package scraper

import (
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"mspro-labs/cfe-tariffs/internal/models"
)

// ExtractRows parses the results table for one leaf. Only the last three
// cells of each data row matter (post, units, value); rows with fewer cells
// are skipped and do not consume an index.
func ExtractRows(tableHTML string, tc models.TraversalContext, now time.Time) ([]models.TariffRecord, error) {
	if strings.TrimSpace(tableHTML) == "" {
		return nil, nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(tableHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse results table: %w", err)
	}

	rows := doc.Find("tr")
	if rows.Length() < 2 {
		logger.Warn("No data rows found in table")
		return nil, nil
	}

	extractedAt := now.Format(models.TimestampLayout)
	var records []models.TariffRecord
	rows.Slice(1, goquery.ToEnd).Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		n := cells.Length()
		if n < 3 {
			return
		}
		records = append(records, models.TariffRecord{
			ID:           tc.RecordID(len(records) + 1),
			Region:       tc.Region,
			Municipality: tc.Municipality,
			Division:     tc.Division,
			Year:         tc.Year,
			Month:        tc.Month,
			MonthName:    models.MonthName(tc.Month),
			ExtractedAt:  extractedAt,
			Fare:         tc.FareType,
			Post:         cellText(cells.Eq(n - 3)),
			Units:        cellText(cells.Eq(n - 2)),
			TariffValue:  NormalizeValue(cellText(cells.Eq(n - 1))),
		})
	})
	return records, nil
}

// NormalizeValue drops thousands separators. The value stays textual.
func NormalizeValue(v string) string {
	return strings.ReplaceAll(v, ",", "")
}

// cellText prefers the rendered text and falls back to the raw text content.
func cellText(s *goquery.Selection) string {
	if t := visibleText(s); t != "" {
		return t
	}
	return strings.TrimSpace(s.Text())
}

// visibleText collects text outside hidden subtrees, with whitespace collapsed.
func visibleText(s *goquery.Selection) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
			return
		case html.ElementNode:
			if isHidden(n) {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range s.Nodes {
		walk(n)
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

func isHidden(n *html.Node) bool {
	switch n.Data {
	case "script", "style", "template":
		return true
	}
	for _, a := range n.Attr {
		switch a.Key {
		case "hidden":
			return true
		case "style":
			style := strings.ToLower(strings.ReplaceAll(a.Val, " ", ""))
			if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
				return true
			}
		}
	}
	return false
}
