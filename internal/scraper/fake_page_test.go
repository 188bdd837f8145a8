package scraper

import (
	"errors"
	"fmt"
	"strings"

	"mspro-labs/cfe-tariffs/internal/config"
)

// Control ids used by the fake form.
const (
	ctlYear   = "ddAnio"
	ctlMonth  = "ddMes"
	ctlRegion = "ddEstado"
	ctlMuni   = "ddMunicipio"
	ctlDiv    = "ddDivision"
	tableSel  = "table.table-bordered"
)

func testSite() *config.SiteConfig {
	return &config.SiteConfig{
		Fares: []config.Fare{{Name: "GDMTH", URL: "http://cfe.test/mth"}},
		Controls: config.Controls{
			Year: ctlYear, Month: ctlMonth, Region: ctlRegion, Municipality: ctlMuni, Division: ctlDiv,
		},
		TableSelect:  tableSel,
		Placeholders: []string{"Seleccione", "Select"},
		Periods:      config.Window{From: "2025-01", To: "2025-01"},
	}
}

type fakeOption struct {
	value, text string
}

type fakeMunicipality struct {
	fakeOption
	divisions []fakeOption
}

type fakeRegion struct {
	fakeOption
	municipalities []fakeMunicipality
}

// fakePage emulates the cascading ASP.NET form: selecting a control clears
// every control below it, and a control only renders once its parent is set.
type fakePage struct {
	regions []fakeRegion
	tables  map[string]string // region/municipality/division values -> table html

	failSelect map[string]bool  // "control=value"
	panicOn    string           // control whose Select panics
	onSelect   func(key string) // runs after every recorded select

	url                            string
	year, month, region, muni, div string

	selects    []string
	tableReads map[string]int
	navigated  int
	closed     bool
}

func newFakePage(regions []fakeRegion) *fakePage {
	return &fakePage{
		regions:    regions,
		tables:     map[string]string{},
		failSelect: map[string]bool{},
		tableReads: map[string]int{},
	}
}

func (p *fakePage) Navigate(url string) error {
	p.navigated++
	p.url = url
	p.year, p.month, p.region, p.muni, p.div = "", "", "", "", ""
	return nil
}

func (p *fakePage) Select(controlID, value string) error {
	if controlID == p.panicOn {
		panic("browser crashed")
	}
	key := controlID + "=" + value
	p.selects = append(p.selects, key)
	if p.onSelect != nil {
		p.onSelect(key)
	}
	if p.failSelect[key] {
		return errors.New("timed out waiting for " + controlID)
	}
	switch controlID {
	case ctlYear:
		p.year, p.month, p.region, p.muni, p.div = value, "", "", "", ""
	case ctlMonth:
		p.month, p.region, p.muni, p.div = value, "", "", ""
	case ctlRegion:
		p.region, p.muni, p.div = value, "", ""
	case ctlMuni:
		p.muni, p.div = value, ""
	case ctlDiv:
		p.div = value
	default:
		return fmt.Errorf("no such control %s", controlID)
	}
	return nil
}

func (p *fakePage) WaitReady() error { return nil }

func (p *fakePage) ElementHTML(selector string) (string, error) {
	switch selector {
	case "#" + ctlRegion:
		if p.month == "" {
			return "", errors.New("region control not rendered")
		}
		var opts []fakeOption
		for _, r := range p.regions {
			opts = append(opts, r.fakeOption)
		}
		return renderSelect(ctlRegion, opts), nil
	case "#" + ctlMuni:
		r := p.currentRegion()
		if r == nil {
			return "", errors.New("municipality control not rendered")
		}
		var opts []fakeOption
		for _, m := range r.municipalities {
			opts = append(opts, m.fakeOption)
		}
		return renderSelect(ctlMuni, opts), nil
	case "#" + ctlDiv:
		m := p.currentMunicipality()
		if m == nil {
			return "", errors.New("division control not rendered")
		}
		return renderSelect(ctlDiv, m.divisions), nil
	case tableSel:
		if p.div == "" {
			return "", errors.New("table not rendered")
		}
		key := p.region + "/" + p.muni + "/" + p.div
		p.tableReads[p.year+"-"+p.month+"/"+key]++
		html, ok := p.tables[key]
		if !ok {
			return "", errors.New("table not rendered")
		}
		return html, nil
	}
	return "", fmt.Errorf("unknown selector %s", selector)
}

func (p *fakePage) Close() error {
	p.closed = true
	return nil
}

func (p *fakePage) currentRegion() *fakeRegion {
	for i := range p.regions {
		if p.regions[i].value == p.region {
			return &p.regions[i]
		}
	}
	return nil
}

func (p *fakePage) currentMunicipality() *fakeMunicipality {
	r := p.currentRegion()
	if r == nil {
		return nil
	}
	for i := range r.municipalities {
		if r.municipalities[i].value == p.muni {
			return &r.municipalities[i]
		}
	}
	return nil
}

func renderSelect(id string, opts []fakeOption) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `<select id=%q><option value="0">-- Seleccione --</option>`, id)
	for _, o := range opts {
		fmt.Fprintf(&sb, `<option value=%q>%s</option>`, o.value, o.text)
	}
	sb.WriteString(`</select>`)
	return sb.String()
}

// tariffTable renders a header plus n data rows with a leading label column.
func tariffTable(n int) string {
	var sb strings.Builder
	sb.WriteString(`<table class="table table-bordered"><tr><th>Tarifa</th><th>Cargo</th><th>Unidades</th><th>Valor</th></tr>`)
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&sb, `<tr><th>GDMTH</th><td>Cargo %d</td><td>$/kWh</td><td>1,%03d.50</td></tr>`, i, i)
	}
	sb.WriteString(`</table>`)
	return sb.String()
}
