package checkout

import (
	_ "embed"
	"errors"
	"fmt"
	"math"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"
)

//go:embed plans.yaml
var defaultPlans []byte

type Plan struct {
	ID                string   `yaml:"id"`
	Name              string   `yaml:"name"`
	MonthlyPriceCents int64    `yaml:"monthly_price_cents"`
	Listings          int      `yaml:"listings"`
	Highlight         bool     `yaml:"highlight"`
	Features          []string `yaml:"features"`
}

type Catalog struct {
	Currency string  `yaml:"currency"`
	VATRate  float64 `yaml:"vat_rate"`
	Plans    []Plan  `yaml:"plans"`

	unit    currency.Unit
	printer *message.Printer
}

// DefaultCatalog returns the embedded plan catalog.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultPlans)
	if err != nil {
		panic(fmt.Sprintf("checkout: embedded catalog: %v", err))
	}
	return c
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	unit, err := currency.ParseISO(c.Currency)
	if err != nil {
		return nil, fmt.Errorf("parse catalog currency %q: %w", c.Currency, err)
	}
	if len(c.Plans) == 0 {
		return nil, errors.New("parse catalog: no plans")
	}
	seen := make(map[string]bool, len(c.Plans))
	for _, p := range c.Plans {
		if p.ID == "" || seen[p.ID] {
			return nil, fmt.Errorf("parse catalog: empty or duplicate plan id %q", p.ID)
		}
		seen[p.ID] = true
	}
	c.unit = unit
	c.printer = message.NewPrinter(language.French)
	return &c, nil
}

func (c *Catalog) Lookup(id string) (Plan, bool) {
	for _, p := range c.Plans {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}

// VATCents is the VAT due on the monthly price, rounded to the cent.
func (c *Catalog) VATCents(p Plan) int64 {
	return int64(math.Round(float64(p.MonthlyPriceCents) * c.VATRate))
}

func (c *Catalog) TotalCents(p Plan) int64 {
	return p.MonthlyPriceCents + c.VATCents(p)
}

// Format renders an amount in cents with the catalog currency symbol.
func (c *Catalog) Format(cents int64) string {
	return c.printer.Sprint(currency.Symbol(c.unit.Amount(float64(cents) / 100)))
}

// VATPercent renders the VAT rate, e.g. "20 %".
func (c *Catalog) VATPercent() string {
	return c.printer.Sprintf("%d %%", int(math.Round(c.VATRate*100)))
}
