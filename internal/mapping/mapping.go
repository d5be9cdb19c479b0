// Package mapping loads the declarative table that translates source codes
// into the target vocabulary and carries the numeric extraction defaults.
package mapping

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var builtin []byte

const envPrefix = "CITYGML"

type Defaults struct {
	Height       float64 `mapstructure:"height" validate:"gt=0"`
	Year         int     `mapstructure:"year" validate:"gt=0"`
	StoreyHeight float64 `mapstructure:"storey_height" validate:"gt=0"`
	UnknownType  string  `mapstructure:"unknown_type" validate:"required"`
	SourceSRS    string  `mapstructure:"source_srs" validate:"required"`
	TargetSRS    string  `mapstructure:"target_srs" validate:"required"`
}

// Period is an inclusive construction-year range; To == 0 leaves it open.
type Period struct {
	Name string `mapstructure:"name" validate:"required"`
	From int    `mapstructure:"from" validate:"gte=0"`
	To   int    `mapstructure:"to" validate:"gte=0"`
}

type Table struct {
	Defaults          Defaults                     `mapstructure:"defaults"`
	Vocabularies      map[string]map[string]string `mapstructure:"vocabularies"`
	GenericAttributes map[string][]string          `mapstructure:"generic_attributes"`
	StandardPrefix    map[string]string            `mapstructure:"standard_prefix"`
	Periods           []Period                     `mapstructure:"periods" validate:"dive"`
	DefaultPeriod     string                       `mapstructure:"default_period"`
}

var validate = validator.New()

// Default returns the built-in table with CITYGML_* environment overrides applied.
func Default() (*Table, error) {
	return load(nil, "")
}

// Load merges the YAML file at path over the built-in table. An empty path
// yields the built-in table.
func Load(path string) (*Table, error) {
	if path == "" {
		return Default()
	}
	return load(nil, path)
}

// LoadReader merges YAML read from r over the built-in table.
func LoadReader(r io.Reader) (*Table, error) {
	return load(r, "")
}

func load(r io.Reader, path string) (*Table, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadConfig(bytes.NewReader(builtin)); err != nil {
		return nil, fmt.Errorf("builtin mapping: %w", err)
	}

	switch {
	case path != "":
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("read mapping %s: %w", path, err)
		}
	case r != nil:
		if err := v.MergeConfig(r); err != nil {
			return nil, fmt.Errorf("read mapping: %w", err)
		}
	}

	var t Table
	if err := v.Unmarshal(&t); err != nil {
		return nil, fmt.Errorf("decode mapping: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	t.normalize()
	return &t, nil
}

// Validate checks field constraints and that periods do not overlap.
func (t *Table) Validate() error {
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("invalid mapping: %w", err)
	}
	for i, p := range t.Periods {
		if p.To != 0 && p.To < p.From {
			return fmt.Errorf("invalid mapping: period %s ends before it starts", p.Name)
		}
		for _, q := range t.Periods[i+1:] {
			if overlaps(p, q) {
				return fmt.Errorf("invalid mapping: periods %s and %s overlap", p.Name, q.Name)
			}
		}
	}
	return nil
}

func overlaps(a, b Period) bool {
	aEnd, bEnd := a.To, b.To
	if aEnd == 0 {
		aEnd = int(^uint(0) >> 1)
	}
	if bEnd == 0 {
		bEnd = int(^uint(0) >> 1)
	}
	return a.From <= bEnd && b.From <= aEnd
}

// viper lowercases map keys; codes and vocabulary names are matched
// case-insensitively, so fold the remaining keys the same way.
func (t *Table) normalize() {
	vocab := make(map[string]map[string]string, len(t.Vocabularies))
	for name, m := range t.Vocabularies {
		folded := make(map[string]string, len(m))
		for code, target := range m {
			folded[strings.ToLower(strings.TrimSpace(code))] = target
		}
		vocab[strings.ToLower(name)] = folded
	}
	t.Vocabularies = vocab

	gen := make(map[string][]string, len(t.GenericAttributes))
	for field, names := range t.GenericAttributes {
		gen[strings.ToLower(field)] = names
	}
	t.GenericAttributes = gen

	prefix := make(map[string]string, len(t.StandardPrefix))
	for typ, p := range t.StandardPrefix {
		prefix[strings.ToLower(typ)] = p
	}
	t.StandardPrefix = prefix
}

var ErrUnmapped = errors.New("code not mapped")

// Lookup translates code through the named vocabulary.
func (t *Table) Lookup(vocabulary, code string) (string, error) {
	m, ok := t.Vocabularies[strings.ToLower(vocabulary)]
	if !ok {
		return "", fmt.Errorf("%w: no vocabulary %q", ErrUnmapped, vocabulary)
	}
	target, ok := m[strings.ToLower(strings.TrimSpace(code))]
	if !ok {
		return "", fmt.Errorf("%w: %s/%s", ErrUnmapped, vocabulary, code)
	}
	return target, nil
}

// Resolve is Lookup with pass-through: unmapped codes come back unchanged.
func (t *Table) Resolve(vocabulary, code string) string {
	if target, err := t.Lookup(vocabulary, code); err == nil {
		return target
	}
	return strings.TrimSpace(code)
}

// GenericNames lists the generic attribute names consulted for a canonical field.
func (t *Table) GenericNames(field string) []string {
	return t.GenericAttributes[strings.ToLower(field)]
}

// Period names the construction period containing year.
func (t *Table) Period(year int) string {
	for _, p := range t.Periods {
		if year >= p.From && (p.To == 0 || year <= p.To) {
			return p.Name
		}
	}
	return t.DefaultPeriod
}

// Standard combines a building type and construction year into the
// simulation standard code, e.g. MULTI_RES_V.
func (t *Table) Standard(buildingType string, year int) string {
	prefix := buildingType
	if p, ok := t.StandardPrefix[strings.ToLower(buildingType)]; ok && p != "" {
		prefix = p
	}
	period := t.Period(year)
	if period == "" {
		return prefix
	}
	return prefix + "_" + period
}

// Fingerprint is a stable rendering of every value that influences extraction
// output, used to key cached results.
func (t *Table) Fingerprint() string {
	var b strings.Builder
	d := t.Defaults
	fmt.Fprintf(&b, "d:%g|%d|%g|%s|%s|%s;", d.Height, d.Year, d.StoreyHeight, d.UnknownType, d.SourceSRS, d.TargetSRS)
	writeSorted(&b, "v", t.Vocabularies)
	for _, field := range sortedKeys(t.GenericAttributes) {
		fmt.Fprintf(&b, "g:%s=%s;", field, strings.Join(t.GenericAttributes[field], ","))
	}
	for _, typ := range sortedKeys(t.StandardPrefix) {
		fmt.Fprintf(&b, "s:%s=%s;", typ, t.StandardPrefix[typ])
	}
	for _, p := range t.Periods {
		fmt.Fprintf(&b, "p:%s=%d-%d;", p.Name, p.From, p.To)
	}
	b.WriteString("dp:" + t.DefaultPeriod)
	return b.String()
}

func writeSorted(b *strings.Builder, tag string, m map[string]map[string]string) {
	for _, name := range sortedKeys(m) {
		inner := m[name]
		for _, code := range sortedKeys(inner) {
			fmt.Fprintf(b, "%s:%s/%s=%s;", tag, name, code, inner[code])
		}
	}
}
