package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mitchellh/mapstructure"
)

// ErrInvalidDocument reports a malformed project document.
var ErrInvalidDocument = errors.New("invalid project document")

// Document is a project as written by users. Percent fields take values in
// [0,100]. A service life of 0 means never replaced, a missing one keeps the
// inherited value.
type Document struct {
	Name        string          `mapstructure:"name"`
	Comments    string          `mapstructure:"comments"`
	Period      float64         `mapstructure:"period"`
	Materials   []MaterialDoc   `mapstructure:"materials"`
	Assemblies  []AssemblyDoc   `mapstructure:"assemblies"`
	Uses        []InstanceDoc   `mapstructure:"uses"`
	BuiltAssets []BuiltAssetDoc `mapstructure:"built_assets"`
	Comparison  *Document       `mapstructure:"comparison"`
}

// MaterialDoc declares a material under a document local key, either from the
// catalog (ID) or from user coefficients (Custom).
type MaterialDoc struct {
	Key              string     `mapstructure:"key"`
	ID               string     `mapstructure:"id"`
	Custom           *CustomDoc `mapstructure:"custom"`
	WastagePercent   *float64   `mapstructure:"wastage_percent"`
	ServiceLife      *float64   `mapstructure:"service_life"`
	ReductionPercent FlowsDoc   `mapstructure:"reduction_percent"`
	Comments         string     `mapstructure:"comments"`
}

type CustomDoc struct {
	Name           string  `mapstructure:"name"`
	Category       string  `mapstructure:"category"`
	FunctionalUnit string  `mapstructure:"functional_unit"`
	Density        float64 `mapstructure:"density"`
	Energy         float64 `mapstructure:"energy"`
	Water          float64 `mapstructure:"water"`
	GHG            float64 `mapstructure:"ghg"`
}

type FlowsDoc struct {
	Energy float64 `mapstructure:"energy"`
	Water  float64 `mapstructure:"water"`
	GHG    float64 `mapstructure:"ghg"`
}

type AssemblyDoc struct {
	Name           string         `mapstructure:"name"`
	Category       string         `mapstructure:"category"`
	Geometry       string         `mapstructure:"geometry"`
	Comments       string         `mapstructure:"comments"`
	ServiceLife    *float64       `mapstructure:"service_life"`
	WastagePercent *float64       `mapstructure:"wastage_percent"`
	Components     []ComponentDoc `mapstructure:"components"`
}

// ComponentDoc references a material key of the document, or a catalog id.
// Unit defaults to the material functional unit.
type ComponentDoc struct {
	Material       string   `mapstructure:"material"`
	Quantity       float64  `mapstructure:"quantity"`
	Unit           string   `mapstructure:"unit"`
	ServiceLife    *float64 `mapstructure:"service_life"`
	WastagePercent *float64 `mapstructure:"wastage_percent"`
}

type InstanceDoc struct {
	Assembly string  `mapstructure:"assembly"`
	Quantity float64 `mapstructure:"quantity"`
}

type BuiltAssetDoc struct {
	Name      string        `mapstructure:"name"`
	Comments  string        `mapstructure:"comments"`
	Instances []InstanceDoc `mapstructure:"instances"`
}

// Parse reads a JSON project document.
func Parse(r io.Reader) (*Document, error) {
	raw := make(map[string]any)
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	return Decode(raw)
}

// Load reads the project document at path.
func Load(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open project: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

// Decode converts a generic map into a document. Unknown fields are rejected.
func Decode(raw map[string]any) (*Document, error) {
	doc := new(Document)
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           doc,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create document decoder: %w", err)
	}

	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDocument, err.Error())
	}

	return doc, nil
}

