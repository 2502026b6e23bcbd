// Package config holds the analysis configuration: which model and dataset
// files belong to each target, how features group into categories and how
// the chart is drawn.
package config

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/shapscale/chart"
	"github.com/YuminosukeSato/shapscale/metrics"
	"github.com/YuminosukeSato/shapscale/pkg/errors"
)

// Config is the analysis configuration.
type Config struct {
	// GridSizes label the x axis. The Nth model and dataset of every target
	// belong to the Nth grid size.
	GridSizes  []string   `yaml:"grid_sizes"`
	Categories []Category `yaml:"categories"`
	Targets    []Target   `yaml:"targets"`
	Chart      Chart      `yaml:"chart"`
	// Workers bounds the model/dataset pairs explained at once; 0 means one per pair.
	Workers int `yaml:"workers"`
}

// Category groups features and sets their series style.
type Category struct {
	Name     string   `yaml:"name"`
	Features []string `yaml:"features"`
	Color    string   `yaml:"color"`
	Marker   string   `yaml:"marker"`
}

// Target is one modeling target drawn as its own panel.
type Target struct {
	Name     string   `yaml:"name"`
	Models   []string `yaml:"models"`
	Datasets []string `yaml:"datasets"`
}

// Chart configures the rendered figure.
type Chart struct {
	Output      string    `yaml:"output"`
	WidthIn     float64   `yaml:"width_in"`
	HeightIn    float64   `yaml:"height_in"`
	XLabel      string    `yaml:"x_label"`
	YLabel      string    `yaml:"y_label"`
	YTicks      []float64 `yaml:"y_ticks"`
	LegendTitle string    `yaml:"legend_title"`
}

// Default returns the configuration of the AMT / AMT-var analysis with
// empty file lists.
func Default() *Config {
	return &Config{
		GridSizes: []string{"1", "25", "100", "225", "400"},
		Categories: []Category{
			{Name: "Topography", Features: []string{"Elevation", "Slope", "Aspect"}, Color: "blue", Marker: "x"},
			{Name: "Land Cover", Features: []string{"Forest", "Grassland", "Cropland", "Builtups", "Bareland", "water", "herb_wetland"}, Color: "green", Marker: "s"},
			{Name: "Diversity metrics", Features: []string{"Shannondiversity", "Simpsondiversity", "entropy", "Patchrichness", "Patchdensity", "Numberofpatch"}, Color: "red", Marker: "o"},
			{Name: "Area and Edge metrics", Features: []string{"Meanpatcharea", "edgedensity"}, Color: "orange", Marker: "+"},
			{Name: "Shape metrics", Features: []string{"Shapeindex"}, Color: "teal", Marker: "*"},
			{Name: "Core area metrics", Features: []string{"Coreareaindex"}, Color: "brown", Marker: "v"},
			{Name: "Aggregation metrics", Features: []string{"Aggregationindex", "IJI", "cohesion", "contagion"}, Color: "indigo", Marker: "d"},
			{Name: "Complexity metrics", Features: []string{"division", "Meshsize", "Split"}, Color: "magenta", Marker: "^"},
		},
		Targets: []Target{
			{Name: "AMT"},
			{Name: "AMT-var"},
		},
		Chart: Chart{
			Output:      "shap_categories.png",
			WidthIn:     14,
			HeightIn:    6,
			XLabel:      "Grid size (km²)",
			YLabel:      "Log₁₀(SHAP Values)",
			YTicks:      []float64{0.05, 0.1, 0.2, 0.5, 1.0, 1.5, 2},
			LegendTitle: "Categories",
		},
	}
}

// Load reads a YAML file over Default, resolves relative paths against the
// file's directory and validates the result.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open config %s", path)
	}
	defer file.Close()

	cfg, err := Read(file)
	if err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	cfg.resolvePaths(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// Read decodes YAML over Default without validating. Unknown keys are errors.
func Read(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, errors.NewParseError("config", 0, err.Error())
	}
	return cfg, nil
}

// Write encodes cfg as YAML.
func Write(w io.Writer, cfg *Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return errors.Wrap(err, "encode config")
	}
	return enc.Close()
}

func (c *Config) resolvePaths(dir string) {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	for i := range c.Targets {
		t := &c.Targets[i]
		for j := range t.Models {
			t.Models[j] = resolve(t.Models[j])
		}
		for j := range t.Datasets {
			t.Datasets[j] = resolve(t.Datasets[j])
		}
	}
	c.Chart.Output = resolve(c.Chart.Output)
}

// Validate checks the configuration as a whole.
func (c *Config) Validate() error {
	if len(c.GridSizes) == 0 {
		return errors.NewValidationError("grid_sizes", "at least one grid size is required", c.GridSizes)
	}
	if err := c.ValidateCategories(); err != nil {
		return err
	}
	if err := c.validateTargets(); err != nil {
		return err
	}
	if err := c.Chart.validate(); err != nil {
		return err
	}
	if c.Workers < 0 {
		return errors.NewValidationError("workers", "must not be negative", c.Workers)
	}
	return nil
}

// ValidateCategories checks names, features and series styles of the categories.
func (c *Config) ValidateCategories() error {
	if len(c.Categories) == 0 {
		return errors.NewValidationError("categories", "at least one category is required", nil)
	}
	seen := make(map[string]bool, len(c.Categories))
	for _, cat := range c.Categories {
		if cat.Name == "" {
			return errors.NewValidationError("categories.name", "must not be empty", cat.Name)
		}
		if seen[cat.Name] {
			return errors.NewValidationError("categories.name", "duplicate category", cat.Name)
		}
		seen[cat.Name] = true
		if len(cat.Features) == 0 {
			return errors.NewValidationError("categories["+cat.Name+"].features", "at least one feature is required", nil)
		}
		if _, err := chart.ParseColor(cat.Color); err != nil {
			return errors.Wrapf(err, "category %q", cat.Name)
		}
		if _, err := chart.ParseMarker(cat.Marker); err != nil {
			return errors.Wrapf(err, "category %q", cat.Name)
		}
	}
	return nil
}

func (c *Config) validateTargets() error {
	if len(c.Targets) == 0 {
		return errors.NewValidationError("targets", "at least one target is required", nil)
	}
	seen := make(map[string]bool, len(c.Targets))
	for _, t := range c.Targets {
		if t.Name == "" {
			return errors.NewValidationError("targets.name", "must not be empty", t.Name)
		}
		if seen[t.Name] {
			return errors.NewValidationError("targets.name", "duplicate target", t.Name)
		}
		seen[t.Name] = true
		if len(t.Models) != len(c.GridSizes) {
			return errors.NewValidationError("targets["+t.Name+"].models",
				"need one model per grid size ("+strings.Join(c.GridSizes, ", ")+")", len(t.Models))
		}
		if len(t.Datasets) != len(t.Models) {
			return errors.NewValidationError("targets["+t.Name+"].datasets",
				"need one dataset per model", len(t.Datasets))
		}
	}
	return nil
}

func (ch *Chart) validate() error {
	if ch.Output == "" || filepath.Ext(ch.Output) == "" {
		return errors.NewValidationError("chart.output", "file name with an image extension is required", ch.Output)
	}
	if ch.WidthIn <= 0 || ch.HeightIn <= 0 {
		return errors.NewValidationError("chart.width_in/height_in", "must be positive",
			[]float64{ch.WidthIn, ch.HeightIn})
	}
	for i, v := range ch.YTicks {
		if v <= 0 {
			return errors.NewValidationError("chart.y_ticks", "log axis ticks must be positive", v)
		}
		if i > 0 && v <= ch.YTicks[i-1] {
			return errors.NewValidationError("chart.y_ticks", "must be ascending", ch.YTicks)
		}
	}
	return nil
}

// MetricCategories returns the categories in aggregation form.
func (c *Config) MetricCategories() []metrics.Category {
	out := make([]metrics.Category, len(c.Categories))
	for i, cat := range c.Categories {
		out[i] = metrics.Category{Name: cat.Name, Features: cat.Features}
	}
	return out
}

// Series returns the chart style of every category.
func (c *Config) Series() ([]chart.Series, error) {
	out := make([]chart.Series, len(c.Categories))
	for i, cat := range c.Categories {
		col, err := chart.ParseColor(cat.Color)
		if err != nil {
			return nil, err
		}
		marker, err := chart.ParseMarker(cat.Marker)
		if err != nil {
			return nil, err
		}
		out[i] = chart.Series{Name: cat.Name, Color: col, Marker: marker}
	}
	return out, nil
}
