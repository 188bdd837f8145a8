package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NotAvailable marks traversal levels that were never reached.
const NotAvailable = "N/A"

// TimestampLayout is the layout used for extracted_at and failure timestamps.
const TimestampLayout = "2006-01-02 15:04:05"

// TariffRecord holds one row of the results table for a single leaf.
type TariffRecord struct {
	ID           string `json:"id"`
	Region       string `json:"region"`
	Municipality string `json:"municipality"`
	Division     string `json:"division"`
	Year         string `json:"year"`
	Month        int    `json:"month"`
	MonthName    string `json:"month_name"`
	ExtractedAt  string `json:"extracted_at"`
	Fare         string `json:"fare"`
	Post         string `json:"post"`
	Units        string `json:"units"`
	TariffValue  string `json:"tariff_value"`
}

// FailureRecord is one entry of the failure log.
type FailureRecord struct {
	Timestamp    string `json:"timestamp"`
	FareType     string `json:"fare_type"`
	Region       string `json:"region"`
	Municipality string `json:"municipality"`
	Division     string `json:"division"`
	Year         string `json:"year"`
	Month        int    `json:"month"`
	Error        string `json:"error"`
}

// DropdownOption is a single choice of a select control.
type DropdownOption struct {
	Value string
	Text  string
}

// Period is one (year, month) pair of the configured window.
type Period struct {
	Year  int
	Month int
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// YearValue is the year as the year control expects it.
func (p Period) YearValue() string { return strconv.Itoa(p.Year) }

// MonthValue is the month as the month control expects it.
func (p Period) MonthValue() string { return strconv.Itoa(p.Month) }

// Before reports whether p comes strictly before o.
func (p Period) Before(o Period) bool {
	if p.Year != o.Year {
		return p.Year < o.Year
	}
	return p.Month < o.Month
}

// Next returns the following month.
func (p Period) Next() Period {
	if p.Month == 12 {
		return Period{Year: p.Year + 1, Month: 1}
	}
	return Period{Year: p.Year, Month: p.Month + 1}
}

// ParsePeriod parses "YYYY-MM".
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(s))
	if err != nil {
		return Period{}, fmt.Errorf("invalid period %q (want YYYY-MM): %w", s, err)
	}
	return Period{Year: t.Year(), Month: int(t.Month())}, nil
}

// PeriodRange expands [from, to] into chronological order.
func PeriodRange(from, to Period) []Period {
	var periods []Period
	for p := from; !to.Before(p); p = p.Next() {
		periods = append(periods, p)
	}
	return periods
}

// TraversalContext identifies a node of the traversal tree.
// Levels below the node's depth hold NotAvailable.
type TraversalContext struct {
	FareType     string
	Year         string
	Month        int
	Region       string
	Municipality string
	Division     string
}

// NewContext starts a context at the period level.
func NewContext(fare string, p Period) TraversalContext {
	return TraversalContext{
		FareType:     fare,
		Year:         p.YearValue(),
		Month:        p.Month,
		Region:       NotAvailable,
		Municipality: NotAvailable,
		Division:     NotAvailable,
	}
}

func (c TraversalContext) WithRegion(name string) TraversalContext {
	c.Region = name
	c.Municipality = NotAvailable
	c.Division = NotAvailable
	return c
}

func (c TraversalContext) WithMunicipality(name string) TraversalContext {
	c.Municipality = name
	c.Division = NotAvailable
	return c
}

func (c TraversalContext) WithDivision(name string) TraversalContext {
	c.Division = name
	return c
}

// Key is the identity of the node, used to guard against revisits.
func (c TraversalContext) Key() string {
	return strings.Join([]string{c.FareType, c.Year, strconv.Itoa(c.Month), c.Region, c.Municipality, c.Division}, "|")
}

func (c TraversalContext) String() string {
	return fmt.Sprintf("%s %s-%02d %s/%s/%s", c.FareType, c.Year, c.Month, c.Region, c.Municipality, c.Division)
}

// RecordID builds the deduplication key of a row.
func (c TraversalContext) RecordID(rowIndex int) string {
	return fmt.Sprintf("%s_%s_%s_%s_%d_%d", c.Region, c.Municipality, c.Division, c.Year, c.Month, rowIndex)
}

var monthNames = [...]string{
	"ENERO", "FEBRERO", "MARZO", "ABRIL", "MAYO", "JUNIO",
	"JULIO", "AGOSTO", "SEPTIEMBRE", "OCTUBRE", "NOVIEMBRE", "DICIEMBRE",
}

// MonthName returns the Spanish month label, or the number for out-of-range input.
func MonthName(month int) string {
	if month < 1 || month > 12 {
		return strconv.Itoa(month)
	}
	return monthNames[month-1]
}

// Run statuses used by the job layer.
const (
	RunQueued    = "queued"
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// Run tracks one background scrape job.
type Run struct {
	ID         string     `json:"run_id"`
	Status     string     `json:"status"`
	StartedAt  *time.Time `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
	Message    string     `json:"message"`
}
