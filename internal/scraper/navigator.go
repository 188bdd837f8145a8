package scraper

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	log "github.com/sirupsen/logrus"

	"mspro-labs/cfe-tariffs/internal/config"
	"mspro-labs/cfe-tariffs/internal/models"
)

// Page is the browser capability the engine drives. Every method is bounded
// by the implementation's own timeouts.
type Page interface {
	Navigate(url string) error
	// Select waits for the select control with the given id and picks value.
	Select(controlID, value string) error
	// WaitReady waits for the document to finish loading.
	WaitReady() error
	// ElementHTML waits for the first element matching selector and returns its outer HTML.
	ElementHTML(selector string) (string, error)
	Close() error
}

// Result is the outcome of a navigation primitive.
type Result struct {
	OK     bool
	Reason string
}

func ok() Result { return Result{OK: true} }

func failed(reason string, err error) Result {
	if err != nil {
		reason += ": " + err.Error()
	}
	return Result{Reason: reason}
}

// Navigator wraps the Page with settle waits and option parsing.
type Navigator struct {
	page         Page
	timing       config.Timing
	placeholders []string
	sleep        func(time.Duration)
}

func NewNavigator(page Page, site *config.SiteConfig) *Navigator {
	return &Navigator{
		page:         page,
		timing:       site.Timing,
		placeholders: site.Placeholders,
		sleep:        time.Sleep,
	}
}

// Load opens a fare page and lets it settle.
func (n *Navigator) Load(url string) Result {
	if err := n.page.Navigate(url); err != nil {
		return failed("failed to load page", err)
	}
	n.settle()
	return ok()
}

// SelectOption picks value in the control and waits for the postback to settle.
// The same call moves forward and resets descendants when backtracking.
func (n *Navigator) SelectOption(controlID, value string) Result {
	if err := n.page.Select(controlID, value); err != nil {
		logger.WithFields(log.Fields{"control": controlID, "value": value}).Errorf("Error selecting option: %v", err)
		return failed("select "+value+" in "+controlID, err)
	}
	logger.WithFields(log.Fields{"control": controlID, "value": value}).Debug("Selected option")
	n.settle()
	return ok()
}

// settle absorbs the postback: a fixed pause, a bounded ready wait, another pause.
func (n *Navigator) settle() {
	n.sleep(n.timing.PreSettle)
	if err := n.page.WaitReady(); err != nil {
		logger.Warnf("Page load timeout, continuing: %v", err)
	}
	n.sleep(n.timing.Settle)
}

// ListOptions returns the real choices of a control in DOM order.
// A missing or unreadable control yields no options.
func (n *Navigator) ListOptions(controlID string) []models.DropdownOption {
	html, err := n.page.ElementHTML("#" + controlID)
	if err != nil {
		logger.WithField("control", controlID).Errorf("Error getting options: %v", err)
		return nil
	}
	return parseOptions(html, n.placeholders)
}

func parseOptions(html string, placeholders []string) []models.DropdownOption {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	var options []models.DropdownOption
	doc.Find("option").Each(func(_ int, s *goquery.Selection) {
		value, _ := s.Attr("value")
		value = strings.TrimSpace(value)
		text := strings.TrimSpace(s.Text())
		if value == "" || value == "0" || text == "" || isPlaceholder(text, placeholders) {
			return
		}
		options = append(options, models.DropdownOption{Value: value, Text: text})
	})
	return options
}

func isPlaceholder(text string, placeholders []string) bool {
	for _, p := range placeholders {
		if p != "" && strings.Contains(text, p) {
			return true
		}
	}
	return false
}

// TableHTML returns the results table, or "" when it never appears.
func (n *Navigator) TableHTML(selector string) string {
	html, err := n.page.ElementHTML(selector)
	if err != nil {
		logger.WithField("selector", selector).Warnf("Results table not found: %v", err)
		return ""
	}
	return html
}
