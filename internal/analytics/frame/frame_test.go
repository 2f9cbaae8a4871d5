package frame

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argus-v/argus-ml/internal/errs"
)

func TestNewRejectsBadColumns(t *testing.T) {
	_, err := New(NumericColumn("a", []float64{1, 2}), NumericColumn("a", []float64{3, 4}))
	assert.ErrorContains(t, err, "duplicate column")

	_, err = New(NumericColumn("a", []float64{1, 2}), NumericColumn("b", []float64{3}))
	assert.ErrorContains(t, err, "expected 2")

	_, err = New(NumericColumn("", []float64{1}))
	assert.ErrorContains(t, err, "empty name")
}

func TestRequireListsEveryMissingColumn(t *testing.T) {
	f := MustNew(NumericColumn("a", []float64{1}))

	err := f.Require("a", "b", "c")
	var schemaErr *errs.SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, []string{"b", "c"}, schemaErr.Missing)
	assert.NoError(t, f.Require("a"))
}

func TestSelectWithDropFilter(t *testing.T) {
	f := MustNew(
		NumericColumn("a", []float64{1, 2, 3}),
		CategoricalColumn("p", []string{"tcp", "udp", "x"}),
		NumericColumn("b", []float64{10, 20, 30}),
	)

	sel, err := f.Select("b", "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, sel.Names())

	withC, err := f.With(NumericColumn("c", []float64{7, 8, 9}))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "p", "b", "c"}, withC.Names())

	replaced, err := f.With(NumericColumn("a", []float64{0, 0, 0}))
	require.NoError(t, err)
	a, _ := replaced.Floats("a")
	assert.Equal(t, []float64{0, 0, 0}, a)
	orig, _ := f.Floats("a")
	assert.Equal(t, []float64{1, 2, 3}, orig, "source frame must not change")

	assert.Equal(t, []string{"a", "b"}, f.Drop("p", "missing").Names())

	filtered := f.Filter([]bool{true, false, true})
	assert.Equal(t, 2, filtered.Rows())
	p, _ := filtered.Column("p")
	assert.Equal(t, []string{"tcp", "x"}, p.Strings)
}

func TestMatrixAndCell(t *testing.T) {
	f := MustNew(
		NumericColumn("a", []float64{1, 2}),
		NumericColumn("b", []float64{3, 4}),
		CategoricalColumn("ip", []string{"10.0.0.1", "10.0.0.2"}),
	)
	m, err := f.Matrix("b", "a")
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{3, 1}, {4, 2}}, m)

	_, err = f.Matrix("ip")
	assert.Error(t, err)

	ip, ok := f.Cell(0, "ip")
	assert.True(t, ok)
	assert.Equal(t, "10.0.0.1", ip)
}

func TestFromRecords(t *testing.T) {
	f, err := FromRecords([]map[string]any{
		{"bytes": 10.0, "protocol": "TCP"},
		{"bytes": 20.0, "protocol": "UDP"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"bytes", "protocol"}, f.Names())
	col, _ := f.Column("protocol")
	assert.Equal(t, Categorical, col.Kind)

	_, err = FromRecords([]map[string]any{{"a": 1.0}, {"b": 1.0}})
	assert.Error(t, err)
}

func TestReadCSV(t *testing.T) {
	in := "bytes,protocol,label\n100,tcp,0\n200, udp ,1\n"
	f, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, 2, f.Rows())

	labels, err := f.Labels("label")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, labels)

	proto, _ := f.Column("protocol")
	assert.Equal(t, []string{"tcp", "udp"}, proto.Strings)

	headerless, err := ReadCSV(strings.NewReader("1,2\n3,4\n"), "a", "b")
	require.NoError(t, err)
	b, _ := headerless.Floats("b")
	assert.Equal(t, []float64{2, 4}, b)
}

func TestFeatureSpecApply(t *testing.T) {
	f := MustNew(
		NumericColumn("bytes_in", []float64{0, math.E - 1}),
		NumericColumn("bytes_out", []float64{1, 1}),
		NumericColumn("packets_in", []float64{1, 1}),
		NumericColumn("packets_out", []float64{1, 1}),
		NumericColumn("duration", []float64{-5, 1}),
		NumericColumn("src_port", []float64{-443, 80}),
		NumericColumn("dst_port", []float64{53, -53}),
		CategoricalColumn("protocol", []string{" tcp", "GRE"}),
	)

	m, err := FlowSpec().Apply(f)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, m[0][0], 1e-12)
	assert.InDelta(t, 1.0, m[1][0], 1e-12)
	assert.Equal(t, 0.0, m[0][4], "negative durations clamp to zero before log1p")
	assert.Equal(t, 443.0, m[0][5])
	assert.Equal(t, 53.0, m[1][6])
	assert.Equal(t, 1.0, m[0][7])
	assert.Equal(t, 5.0, m[1][7])

	_, err = RetinaSpec().Apply(f)
	var schemaErr *errs.SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Len(t, schemaErr.Missing, 4)
}

func TestFeatureSpecApplyRejectsText(t *testing.T) {
	f, err := FromRecords([]map[string]any{
		{"packet_count": 10.0, "byte_count": nil, "duration_seconds": 1.0, "rate_bps": "fast"},
	})
	require.NoError(t, err)

	_, err = RetinaSpec().Apply(f)
	var schemaErr *errs.SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Empty(t, schemaErr.Missing)
	assert.Equal(t, []string{"byte_count", "rate_bps"}, schemaErr.NonNumeric)
	assert.Contains(t, err.Error(), "non-numeric values in columns [byte_count, rate_bps]")
}

func TestParseFeatureSpec(t *testing.T) {
	spec, err := ParseFeatureSpec([]byte(`
name: custom
features:
  - name: byte_count
    transform: log1p
  - name: proto
    transform: categorical
    categories: {tcp: 1, udp: 2}
    default: 9
  - name: rate_bps
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"byte_count", "proto", "rate_bps"}, spec.Columns())
	assert.Equal(t, TransformPassthrough, spec.Features[2].Transform)
	assert.Equal(t, "byte_count:log1p,proto:categorical,rate_bps:"+string(TransformPassthrough), spec.Describe())
	assert.Equal(t, 1.0, spec.Features[1].Categories["TCP"])

	_, err = ParseFeatureSpec([]byte("name: x\nfeatures:\n  - name: a\n    transform: sqrt\n"))
	assert.ErrorContains(t, err, "unknown transform")

	_, err = ParseFeatureSpec([]byte("name: x\nfeatures: []\n"))
	assert.Error(t, err)
}

func TestFeatureSpecCloneIsDeep(t *testing.T) {
	spec := FlowSpec()
	clone := spec.Clone()
	clone.Features[7].Categories["SCTP"] = 6
	_, leaked := spec.Features[7].Categories["SCTP"]
	assert.False(t, leaked)
}

func TestWriteCSVRoundTrip(t *testing.T) {
	f := MustNew(
		NumericColumn("bytes", []float64{1.5, 2}),
		CategoricalColumn("protocol", []string{"tcp", "udp"}),
	)
	var buf strings.Builder
	require.NoError(t, WriteCSV(&buf, f))
	assert.Equal(t, "bytes,protocol\n1.5,tcp\n2,udp\n", buf.String())

	back, err := ReadCSV(strings.NewReader(buf.String()))
	require.NoError(t, err)
	b, _ := back.Floats("bytes")
	assert.Equal(t, []float64{1.5, 2}, b)
}
