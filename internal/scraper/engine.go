package scraper

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	log "github.com/sirupsen/logrus"

	"mspro-labs/cfe-tariffs/internal/config"
	"mspro-labs/cfe-tariffs/internal/models"
)

var logger = log.WithField("component", "scraper")

// State is the depth of a traversal node.
type State int

const (
	StateFareType State = iota
	StatePeriod
	StateRegion
	StateMunicipality
	StateDivision
	StateExtract
)

func (s State) String() string {
	switch s {
	case StateFareType:
		return "fare"
	case StatePeriod:
		return "period"
	case StateRegion:
		return "region"
	case StateMunicipality:
		return "municipality"
	case StateDivision:
		return "division"
	case StateExtract:
		return "extract"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Failure reasons recorded by the engine itself.
const (
	ReasonNoData      = "no data extracted"
	ReasonNoDivisions = "no divisions available"
)

// Outcome is what a level handler decides for one child: descend into
// Context, or skip it and record Reason against Context.
type Outcome struct {
	Descend bool
	Context models.TraversalContext
	Reason  string
}

func descend(tc models.TraversalContext) Outcome { return Outcome{Descend: true, Context: tc} }

func skip(tc models.TraversalContext, reason string) Outcome {
	return Outcome{Context: tc, Reason: reason}
}

// RecordSink receives the rows of each completed leaf and reports how many it kept.
type RecordSink interface {
	Append(ctx context.Context, records []models.TariffRecord, tc models.TraversalContext) (int, error)
}

// FailureSink receives one entry per node that could not be completed.
type FailureSink interface {
	Record(tc models.TraversalContext, message string)
}

// selection is a control value that can be reselected to reset descendants.
type selection struct {
	control string
	value   string
}

// Engine walks fares × periods × regions × municipalities × divisions.
// It is single-threaded: the remote form is one piece of shared state.
type Engine struct {
	site     *config.SiteConfig
	periods  []models.Period
	nav      *Navigator
	records  RecordSink
	failures FailureSink
	now      func() time.Time

	visited map[string]struct{}
	stats   Stats
}

// Stats summarises a run. Records counts rows the sink kept, so rows dropped
// as duplicates are not included.
type Stats struct {
	Leaves   int
	Records  int
	Failures int
}

func NewEngine(site *config.SiteConfig, nav *Navigator, records RecordSink, failures FailureSink) (*Engine, error) {
	periods, err := site.PeriodList()
	if err != nil {
		return nil, err
	}
	return &Engine{
		site:     site,
		periods:  periods,
		nav:      nav,
		records:  records,
		failures: failures,
		now:      time.Now,
		visited:  make(map[string]struct{}),
	}, nil
}

// Run walks every fare type. It never returns an error: node failures are
// recorded, cancellation stops the walk cleanly and a panic ends the run
// after being logged.
func (e *Engine) Run(ctx context.Context) (stats Stats) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithField("stack", string(debug.Stack())).Errorf("Error in main scraping loop: %v", r)
		}
		stats = e.stats
		logger.WithFields(log.Fields{
			"leaves":   e.stats.Leaves,
			"records":  e.stats.Records,
			"failures": e.stats.Failures,
		}).Info("Scraping finished")
	}()

	for _, fare := range e.site.Fares {
		logger.WithField("fare", fare.Name).Info("Processing fare type")
		for _, period := range e.periods {
			if ctx.Err() != nil {
				logger.Info("Scraping interrupted")
				return
			}
			e.runPeriod(ctx, fare, period)
		}
	}
	return
}

func (e *Engine) runPeriod(ctx context.Context, fare config.Fare, period models.Period) {
	logger.WithFields(log.Fields{"fare": fare.Name, "period": period.String()}).Info("Processing period")

	out := e.enterPeriod(fare, period)
	if !out.Descend {
		e.fail(out)
		return
	}
	e.walk(ctx, StateRegion, out.Context, selection{e.site.Controls.Month, period.MonthValue()})
}

// enterPeriod loads the fare page and selects year then month.
func (e *Engine) enterPeriod(fare config.Fare, period models.Period) Outcome {
	tc := models.NewContext(fare.Name, period)
	if res := e.nav.Load(fare.URL); !res.OK {
		return skip(tc, res.Reason)
	}
	if res := e.nav.SelectOption(e.site.Controls.Year, period.YearValue()); !res.OK {
		return skip(tc, "Failed to select year")
	}
	if res := e.nav.SelectOption(e.site.Controls.Month, period.MonthValue()); !res.OK {
		return skip(tc, "Failed to select month")
	}
	return descend(tc)
}

func (e *Engine) control(state State) string {
	switch state {
	case StateRegion:
		return e.site.Controls.Region
	case StateMunicipality:
		return e.site.Controls.Municipality
	case StateDivision:
		return e.site.Controls.Division
	}
	panic(fmt.Sprintf("no control for state %s", state))
}

// walk enumerates the children of tc at state. After every child subtree
// the parent value is reselected so the next sibling starts from a known form.
func (e *Engine) walk(ctx context.Context, state State, tc models.TraversalContext, parent selection) {
	control := e.control(state)
	options := e.nav.ListOptions(control)
	logger.WithFields(log.Fields{"level": state.String(), "count": len(options)}).Info("Found options")

	if len(options) == 0 {
		if state == StateDivision {
			e.fail(skip(tc, ReasonNoDivisions))
		}
		return
	}

	for _, opt := range options {
		if ctx.Err() != nil {
			return
		}
		out := e.enter(state, control, tc, opt)
		if out.Descend {
			e.next(ctx, state, out.Context, selection{control, opt.Value})
		} else {
			e.fail(out)
		}
		if ctx.Err() != nil {
			return
		}
		e.backtrack(parent)
	}
}

// enter selects one child option and reports the child's context.
func (e *Engine) enter(state State, control string, tc models.TraversalContext, opt models.DropdownOption) Outcome {
	var child models.TraversalContext
	switch state {
	case StateRegion:
		child = tc.WithRegion(opt.Text)
	case StateMunicipality:
		child = tc.WithMunicipality(opt.Text)
	default:
		child = tc.WithDivision(opt.Text)
	}
	logger.WithFields(log.Fields{"fare": tc.FareType, state.String(): opt.Text}).Info("Processing option")

	if res := e.nav.SelectOption(control, opt.Value); !res.OK {
		return skip(child, "Failed to select "+state.String())
	}
	return descend(child)
}

func (e *Engine) next(ctx context.Context, state State, tc models.TraversalContext, self selection) {
	if state == StateDivision {
		e.extract(ctx, tc)
		return
	}
	e.walk(ctx, state+1, tc, self)
}

func (e *Engine) backtrack(parent selection) {
	if res := e.nav.SelectOption(parent.control, parent.value); !res.OK {
		logger.WithField("control", parent.control).Warnf("Could not reset form: %s", res.Reason)
	}
}

// extract reads the table of a fully specified leaf, at most once per run.
func (e *Engine) extract(ctx context.Context, tc models.TraversalContext) {
	key := tc.Key()
	if _, seen := e.visited[key]; seen {
		logger.WithField("leaf", tc.String()).Warn("Leaf already visited in this run, skipping")
		return
	}
	e.visited[key] = struct{}{}
	e.stats.Leaves++

	rows, err := ExtractRows(e.nav.TableHTML(e.site.TableSelect), tc, e.now())
	if err != nil {
		e.fail(skip(tc, err.Error()))
		return
	}
	if len(rows) == 0 {
		e.fail(skip(tc, ReasonNoData))
		return
	}

	kept, err := e.records.Append(ctx, rows, tc)
	e.stats.Records += kept
	if err != nil {
		logger.WithField("leaf", tc.String()).Errorf("Failed to persist records: %v", err)
		return
	}
	logger.WithFields(log.Fields{"leaf": tc.String(), "rows": len(rows), "kept": kept}).Info("Successfully extracted and saved data")
}

// fail is the only place a skipped node becomes a FailureRecord.
func (e *Engine) fail(out Outcome) {
	e.stats.Failures++
	e.failures.Record(out.Context, out.Reason)
}
