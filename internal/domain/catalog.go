package domain

import (
	"fmt"
	"strings"
)

// CatalogProduct is a trackable product with its reference pricing.
// Values are loaded once at startup and never mutated.
type CatalogProduct struct {
	ID                int        `json:"id" yaml:"id"`
	CanonicalName     string     `json:"name" yaml:"name"`
	UnitSpec          string     `json:"unitSpec" yaml:"unit"`
	ReferencePrice    float64    `json:"referencePrice" yaml:"reference_price"`
	ReferencePriceAlt float64    `json:"referencePriceAlt" yaml:"reference_price_alt"`
	Aliases           []string   `json:"aliases,omitempty" yaml:"aliases"`
	VisualDescriptor  string     `json:"visualDescriptor,omitempty" yaml:"visual_descriptor"`
	KeywordGroups     [][]string `json:"keywordGroups,omitempty" yaml:"keyword_groups"`
}

// StoreConfig holds per-store pipeline settings
type StoreConfig struct {
	ID               string  `json:"id" yaml:"id"`
	Name             string  `json:"name" yaml:"name"`
	Tolerance        float64 `json:"tolerance,omitempty" yaml:"tolerance"`
	LexicalTolerance float64 `json:"lexicalTolerance,omitempty" yaml:"lexical_tolerance"`
}

// Catalog is the immutable set of products and stores every run is resolved against.
type Catalog struct {
	products []CatalogProduct
	byID     map[int]int
	stores   []StoreConfig
	storeIdx map[string]int
}

// NewCatalog validates products and stores and builds the lookup indexes.
// Any validation failure is wrapped in ErrInvalidCatalog.
func NewCatalog(products []CatalogProduct, stores []StoreConfig) (*Catalog, error) {
	if len(products) == 0 {
		return nil, fmt.Errorf("%w: no products configured", ErrInvalidCatalog)
	}

	c := &Catalog{
		products: make([]CatalogProduct, 0, len(products)),
		byID:     make(map[int]int, len(products)),
		stores:   make([]StoreConfig, 0, len(stores)),
		storeIdx: make(map[string]int, len(stores)),
	}

	for _, p := range products {
		if err := validateProduct(p); err != nil {
			return nil, err
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate product id %d", ErrInvalidCatalog, p.ID)
		}
		c.byID[p.ID] = len(c.products)
		c.products = append(c.products, cloneProduct(p))
	}

	for _, s := range stores {
		if strings.TrimSpace(s.ID) == "" {
			return nil, fmt.Errorf("%w: store with empty id", ErrInvalidCatalog)
		}
		if _, dup := c.storeIdx[s.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate store id %q", ErrInvalidCatalog, s.ID)
		}
		if s.Tolerance < 0 || s.Tolerance > 1 || s.LexicalTolerance < 0 || s.LexicalTolerance > 1 {
			return nil, fmt.Errorf("%w: store %q tolerance must be between 0 and 1", ErrInvalidCatalog, s.ID)
		}
		c.storeIdx[s.ID] = len(c.stores)
		c.stores = append(c.stores, s)
	}

	return c, nil
}

func validateProduct(p CatalogProduct) error {
	switch {
	case p.ID <= 0:
		return fmt.Errorf("%w: product %q has non-positive id %d", ErrInvalidCatalog, p.CanonicalName, p.ID)
	case strings.TrimSpace(p.CanonicalName) == "":
		return fmt.Errorf("%w: product %d has empty name", ErrInvalidCatalog, p.ID)
	case strings.TrimSpace(p.UnitSpec) == "":
		return fmt.Errorf("%w: product %d has empty unit spec", ErrInvalidCatalog, p.ID)
	case p.ReferencePrice <= 0:
		return fmt.Errorf("%w: product %d is missing a reference price", ErrInvalidCatalog, p.ID)
	}
	for i, group := range p.KeywordGroups {
		if len(group) == 0 {
			return fmt.Errorf("%w: product %d keyword group %d is empty", ErrInvalidCatalog, p.ID, i)
		}
	}
	return nil
}

// cloneProduct copies the slice fields so callers cannot mutate catalog state.
func cloneProduct(p CatalogProduct) CatalogProduct {
	out := p
	out.Aliases = append([]string(nil), p.Aliases...)
	out.KeywordGroups = make([][]string, len(p.KeywordGroups))
	for i, g := range p.KeywordGroups {
		out.KeywordGroups[i] = append([]string(nil), g...)
	}
	return out
}

// Products returns the products in catalog order.
func (c *Catalog) Products() []CatalogProduct {
	out := make([]CatalogProduct, len(c.products))
	for i, p := range c.products {
		out[i] = cloneProduct(p)
	}
	return out
}

// Product looks up a product by id
func (c *Catalog) Product(id int) (CatalogProduct, bool) {
	idx, ok := c.byID[id]
	if !ok {
		return CatalogProduct{}, false
	}
	return c.products[idx], true
}

// Stores returns the configured stores in order
func (c *Catalog) Stores() []StoreConfig {
	return append([]StoreConfig(nil), c.stores...)
}

// Store looks up a store by id
func (c *Catalog) Store(id string) (StoreConfig, bool) {
	idx, ok := c.storeIdx[id]
	if !ok {
		return StoreConfig{}, false
	}
	return c.stores[idx], true
}

// Len returns the number of catalog products
func (c *Catalog) Len() int {
	return len(c.products)
}

// CatalogItem is the view of a product shared with external matchers.
// It intentionally carries no price.
type CatalogItem struct {
	ID               int    `json:"id"`
	Name             string `json:"name"`
	Unit             string `json:"unit"`
	VisualDescriptor string `json:"visualDescriptor,omitempty"`
}

// Items returns the price-free view of every product.
func (c *Catalog) Items(withVisual bool) []CatalogItem {
	items := make([]CatalogItem, 0, len(c.products))
	for _, p := range c.products {
		item := CatalogItem{ID: p.ID, Name: p.CanonicalName, Unit: p.UnitSpec}
		if withVisual {
			item.VisualDescriptor = p.VisualDescriptor
		}
		items = append(items, item)
	}
	return items
}
