// Package catalog loads the static credit-definition catalog.
//
// The catalog is a YAML file shipped with the deployment (or pointed at via
// CATALOG_PATH). It is read once at startup and treated as an immutable
// lookup table keyed by credit id; user credits referencing an id that is
// missing here are skipped by the view pipeline rather than failing it.
package catalog

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"perks/internal/core"
)

// Catalog is the immutable credit-definition lookup.
type Catalog struct {
	byID  map[string]core.CreditDefinition
	order []string
}

type catalogFile struct {
	Credits []creditEntry `yaml:"credits"`
}

type creditEntry struct {
	ID          string `yaml:"id"`
	Title       string `yaml:"title"`
	Value       string `yaml:"value"`
	Period      string `yaml:"period"`
	Anniversary bool   `yaml:"anniversary"`
}

// Load reads and parses a catalog YAML file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse builds a catalog from YAML bytes.
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	c := &Catalog{byID: make(map[string]core.CreditDefinition, len(file.Credits))}
	for i, e := range file.Credits {
		id := strings.TrimSpace(e.ID)
		if id == "" {
			return nil, fmt.Errorf("credit %d: missing id", i)
		}
		if _, dup := c.byID[id]; dup {
			return nil, fmt.Errorf("credit %q: duplicate id", id)
		}
		if strings.TrimSpace(e.Title) == "" {
			return nil, fmt.Errorf("credit %q: missing title", id)
		}
		cents, err := core.ParseDecimalToCents(e.Value)
		if err != nil {
			return nil, fmt.Errorf("credit %q: value %q: %w", id, e.Value, err)
		}
		pt, _ := core.NormalizePeriodType(e.Period)
		c.byID[id] = core.CreditDefinition{
			CreditID:         id,
			Title:            e.Title,
			Value:            core.Money{Cents: cents},
			AssociatedPeriod: pt,
			AnniversaryBased: e.Anniversary,
		}
		c.order = append(c.order, id)
	}
	return c, nil
}

// Get returns the definition for a credit id. The second return is false
// when the id is not in the catalog; callers skip such credits.
func (c *Catalog) Get(creditID string) (core.CreditDefinition, bool) {
	d, ok := c.byID[creditID]
	return d, ok
}

// Len returns the number of catalog entries.
func (c *Catalog) Len() int {
	return len(c.byID)
}

// All returns the definitions in file order.
func (c *Catalog) All() []core.CreditDefinition {
	out := make([]core.CreditDefinition, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}
