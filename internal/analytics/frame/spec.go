package frame

import (
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/argus-v/argus-ml/internal/errs"
)

// Transform names the per-feature transform applied before scaling.
type Transform string

const (
	TransformLog1p       Transform = "log1p"
	TransformPassthrough Transform = "passthrough"
	TransformAbs         Transform = "abs"
	TransformCategorical Transform = "categorical"
)

// ProtocolCodes is the fixed protocol dictionary. Anything else encodes as
// ProtocolOther.
var ProtocolCodes = map[string]float64{
	"TCP":  1,
	"UDP":  2,
	"ICMP": 3,
	"IGMP": 4,
}

// ProtocolOther is the code for protocols missing from ProtocolCodes.
const ProtocolOther = 5.0

// EncodeCategory maps a raw value through a fixed dictionary. Lookups are
// case-insensitive and ignore surrounding whitespace.
func EncodeCategory(categories map[string]float64, fallback float64, raw string) float64 {
	if code, ok := categories[strings.ToUpper(strings.TrimSpace(raw))]; ok {
		return code
	}
	return fallback
}

// EncodeProtocol maps a protocol name to its numeric code.
func EncodeProtocol(raw string) float64 {
	return EncodeCategory(ProtocolCodes, ProtocolOther, raw)
}

// Feature is one entry of a FeatureSpec.
type Feature struct {
	Name       string             `yaml:"name" msgpack:"name" json:"name"`
	Transform  Transform          `yaml:"transform" msgpack:"transform" json:"transform"`
	Categories map[string]float64 `yaml:"categories,omitempty" msgpack:"categories,omitempty" json:"categories,omitempty"`
	Default    float64            `yaml:"default,omitempty" msgpack:"default,omitempty" json:"default,omitempty"`
}

// FeatureSpec is the ordered list of model inputs and how each is derived
// from a raw frame column. A spec must not change once training starts;
// Clone before handing one to a long-lived owner.
type FeatureSpec struct {
	Name     string    `yaml:"name" msgpack:"name" json:"name"`
	Features []Feature `yaml:"features" msgpack:"features" json:"features"`
}

// RetinaSpec covers the simplified aggregated-window schema.
func RetinaSpec() FeatureSpec {
	return FeatureSpec{
		Name: "retina",
		Features: []Feature{
			{Name: "packet_count", Transform: TransformLog1p},
			{Name: "byte_count", Transform: TransformLog1p},
			{Name: "duration_seconds", Transform: TransformLog1p},
			{Name: "rate_bps", Transform: TransformLog1p},
		},
	}
}

// FlowSpec covers the full per-flow schema.
func FlowSpec() FeatureSpec {
	return FeatureSpec{
		Name: "flow",
		Features: []Feature{
			{Name: "bytes_in", Transform: TransformLog1p},
			{Name: "bytes_out", Transform: TransformLog1p},
			{Name: "packets_in", Transform: TransformLog1p},
			{Name: "packets_out", Transform: TransformLog1p},
			{Name: "duration", Transform: TransformLog1p},
			{Name: "src_port", Transform: TransformAbs},
			{Name: "dst_port", Transform: TransformAbs},
			{Name: "protocol", Transform: TransformCategorical, Categories: protocolCategories(), Default: ProtocolOther},
		},
	}
}

func protocolCategories() map[string]float64 {
	out := make(map[string]float64, len(ProtocolCodes))
	for k, v := range ProtocolCodes {
		out[k] = v
	}
	return out
}

// LoadFeatureSpec reads a YAML feature spec from disk.
func LoadFeatureSpec(path string) (FeatureSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FeatureSpec{}, fmt.Errorf("read feature spec: %w", err)
	}
	return ParseFeatureSpec(data)
}

// ParseFeatureSpec decodes and validates a YAML feature spec.
func ParseFeatureSpec(data []byte) (FeatureSpec, error) {
	var spec FeatureSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return FeatureSpec{}, fmt.Errorf("decode feature spec: %w", err)
	}
	for i := range spec.Features {
		if spec.Features[i].Transform == "" {
			spec.Features[i].Transform = TransformPassthrough
		}
		if cats := spec.Features[i].Categories; len(cats) > 0 {
			upper := make(map[string]float64, len(cats))
			for k, v := range cats {
				upper[strings.ToUpper(strings.TrimSpace(k))] = v
			}
			spec.Features[i].Categories = upper
		}
	}
	if err := spec.Validate(); err != nil {
		return FeatureSpec{}, err
	}
	return spec, nil
}

// Validate checks names and transforms.
func (s FeatureSpec) Validate() error {
	if len(s.Features) == 0 {
		return fmt.Errorf("feature spec %q has no features", s.Name)
	}
	seen := make(map[string]bool, len(s.Features))
	for _, f := range s.Features {
		if f.Name == "" {
			return fmt.Errorf("feature spec %q has an unnamed feature", s.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("feature spec %q lists %q twice", s.Name, f.Name)
		}
		seen[f.Name] = true
		switch f.Transform {
		case TransformLog1p, TransformPassthrough, TransformAbs:
		case TransformCategorical:
			if len(f.Categories) == 0 {
				return fmt.Errorf("categorical feature %q has no categories", f.Name)
			}
		default:
			return fmt.Errorf("feature %q has unknown transform %q", f.Name, f.Transform)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (s FeatureSpec) Clone() FeatureSpec {
	out := FeatureSpec{Name: s.Name, Features: make([]Feature, len(s.Features))}
	for i, f := range s.Features {
		out.Features[i] = f
		if f.Categories != nil {
			out.Features[i].Categories = make(map[string]float64, len(f.Categories))
			for k, v := range f.Categories {
				out.Features[i].Categories[k] = v
			}
		}
	}
	return out
}

// Columns returns the feature names in model order.
func (s FeatureSpec) Columns() []string {
	names := make([]string, len(s.Features))
	for i, f := range s.Features {
		names[i] = f.Name
	}
	return names
}

// Describe renders the transforms as a short human-readable string.
func (s FeatureSpec) Describe() string {
	parts := make([]string, len(s.Features))
	for i, f := range s.Features {
		parts[i] = fmt.Sprintf("%s:%s", f.Name, f.Transform)
	}
	return strings.Join(parts, ",")
}

// Apply selects the spec's columns from f and transforms them into a
// row-major matrix in spec order. Missing columns, or text in a column a
// numeric transform reads, yield a *errs.SchemaError.
func (s FeatureSpec) Apply(f *Frame) ([][]float64, error) {
	names := s.Columns()
	if err := f.Require(names...); err != nil {
		return nil, err
	}
	var nonNumeric []string
	for _, feat := range s.Features {
		if col, _ := f.Column(feat.Name); feat.Transform != TransformCategorical && col.Kind != Numeric {
			nonNumeric = append(nonNumeric, feat.Name)
		}
	}
	if len(nonNumeric) > 0 {
		return nil, &errs.SchemaError{NonNumeric: nonNumeric}
	}
	cols := make([][]float64, len(s.Features))
	for j, feat := range s.Features {
		cols[j] = s.transformColumn(f, feat)
	}
	rows := make([][]float64, f.Rows())
	for i := range rows {
		row := make([]float64, len(cols))
		for j := range cols {
			row[j] = cols[j][i]
		}
		rows[i] = row
	}
	return rows, nil
}

func (s FeatureSpec) transformColumn(f *Frame, feat Feature) []float64 {
	col, _ := f.Column(feat.Name)
	out := make([]float64, col.Len())

	if feat.Transform == TransformCategorical {
		if col.Kind == Categorical {
			for i, raw := range col.Strings {
				out[i] = EncodeCategory(feat.Categories, feat.Default, raw)
			}
			return out
		}
		known := make(map[float64]bool, len(feat.Categories))
		for _, code := range feat.Categories {
			known[code] = true
		}
		known[feat.Default] = true
		for i, v := range col.Floats {
			if known[v] {
				out[i] = v
			} else {
				out[i] = feat.Default
			}
		}
		return out
	}

	for i, v := range col.Floats {
		switch feat.Transform {
		case TransformLog1p:
			out[i] = math.Log1p(math.Max(v, 0))
		case TransformAbs:
			out[i] = math.Abs(v)
		default:
			out[i] = v
		}
	}
	return out
}
