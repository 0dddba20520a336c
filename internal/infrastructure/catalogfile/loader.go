// Package catalogfile loads the product catalog and store settings from YAML.
package catalogfile

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/pricelens/backend/internal/domain"
)

//go:embed default_catalog.yaml
var defaultCatalog []byte

// File is the on-disk catalog document
type File struct {
	Stores   []domain.StoreConfig    `yaml:"stores"`
	Products []domain.CatalogProduct `yaml:"products"`
}

// Load reads the catalog at path, or the embedded default catalog when path is empty.
func Load(path string) (*domain.Catalog, error) {
	if path == "" {
		return Parse(bytes.NewReader(defaultCatalog))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open catalog %s", path)
	}
	defer f.Close()

	catalog, err := Parse(f)
	if err != nil {
		return nil, eris.Wrapf(err, "load catalog %s", path)
	}
	return catalog, nil
}

// Parse decodes a catalog document and validates it. Unknown fields are rejected.
func Parse(r io.Reader) (*domain.Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc File
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidCatalog, err)
	}
	return domain.NewCatalog(doc.Products, doc.Stores)
}

// Default returns the embedded catalog document
func Default() []byte {
	return append([]byte(nil), defaultCatalog...)
}
