package scraper

import (
	"fmt"
	"strconv"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
)

// RodPage drives a single Chrome tab with go-rod.
type RodPage struct {
	browser     *rod.Browser
	page        *rod.Page
	elementWait time.Duration
	readyWait   time.Duration
}

// LaunchRod starts Chrome and opens one stealth tab.
func LaunchRod(headless bool, elementWait, readyWait time.Duration) (*RodPage, error) {
	l := launcher.New().
		Headless(headless).
		NoSandbox(true).
		Set("disable-dev-shm-usage").
		Set("disable-gpu").
		Set("window-size", "1920,1080")
	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	page, err := stealth.Page(browser)
	if err != nil {
		browser.Close()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	return &RodPage{
		browser:     browser,
		page:        page,
		elementWait: elementWait,
		readyWait:   readyWait,
	}, nil
}

func (p *RodPage) Navigate(url string) error {
	return p.page.Timeout(p.readyWait).Navigate(url)
}

func (p *RodPage) Select(controlID, value string) error {
	el, err := p.page.Timeout(p.elementWait).Element("#" + controlID)
	if err != nil {
		return fmt.Errorf("control %s not found: %w", controlID, err)
	}
	sel := "option[value=" + strconv.Quote(value) + "]"
	return el.Select([]string{sel}, true, rod.SelectorTypeCSSSector)
}

func (p *RodPage) WaitReady() error {
	return rod.Try(func() {
		p.page.Timeout(p.readyWait).MustWait(`() => document.readyState === "complete"`)
	})
}

func (p *RodPage) ElementHTML(selector string) (string, error) {
	el, err := p.page.Timeout(p.elementWait).Element(selector)
	if err != nil {
		return "", err
	}
	return el.HTML()
}

// Close shuts the tab and the browser; both are attempted.
func (p *RodPage) Close() error {
	pageErr := p.page.Close()
	if err := p.browser.Close(); err != nil {
		return err
	}
	return pageErr
}
