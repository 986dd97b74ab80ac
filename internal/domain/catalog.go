package domain

import "strings"

// Asset maps a display symbol to the identifier a provider uses for it.
type Asset struct {
	Symbol     string `yaml:"symbol"`
	ProviderID string `yaml:"provider_id"`
	Name       string `yaml:"name"`
}

// Catalog is the fixed set of tracked assets. It is immutable after construction.
type Catalog struct {
	assets       []Asset
	bySymbol     map[string]Asset
	byProviderID map[string]Asset
}

func NewCatalog(assets []Asset) *Catalog {
	c := &Catalog{
		bySymbol:     make(map[string]Asset, len(assets)),
		byProviderID: make(map[string]Asset, len(assets)),
	}
	for _, a := range assets {
		a.Symbol = strings.ToUpper(strings.TrimSpace(a.Symbol))
		a.ProviderID = strings.TrimSpace(a.ProviderID)
		if a.Symbol == "" {
			continue
		}
		if a.ProviderID == "" {
			a.ProviderID = a.Symbol
		}
		if _, dup := c.bySymbol[a.Symbol]; dup {
			continue
		}
		c.assets = append(c.assets, a)
		c.bySymbol[a.Symbol] = a
		c.byProviderID[strings.ToLower(a.ProviderID)] = a
	}
	return c
}

// Resolve matches input case-insensitively against display symbols first, then provider IDs.
func (c *Catalog) Resolve(input string) (Asset, bool) {
	input = strings.TrimSpace(input)
	if a, ok := c.bySymbol[strings.ToUpper(input)]; ok {
		return a, true
	}
	a, ok := c.byProviderID[strings.ToLower(input)]
	return a, ok
}

// ByProviderID looks up an asset by the identifier returned upstream.
func (c *Catalog) ByProviderID(id string) (Asset, bool) {
	a, ok := c.byProviderID[strings.ToLower(id)]
	return a, ok
}

func (c *Catalog) ProviderIDs() []string {
	ids := make([]string, 0, len(c.assets))
	for _, a := range c.assets {
		ids = append(ids, a.ProviderID)
	}
	return ids
}

func (c *Catalog) Symbols() []string {
	symbols := make([]string, 0, len(c.assets))
	for _, a := range c.assets {
		symbols = append(symbols, a.Symbol)
	}
	return symbols
}

func (c *Catalog) Len() int {
	return len(c.assets)
}
