package pricing

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want *int64
	}{
		{name: "absent", in: nil, want: nil},
		{name: "integer passes through", in: 1500, want: ptr(1500)},
		{name: "int64 passes through", in: int64(42), want: ptr(42)},
		{name: "json float truncated", in: 716300.9, want: ptr(716300)},
		{name: "json number", in: json.Number("1336800"), want: ptr(1336800)},
		{name: "won with separators", in: "1,947,000원", want: ptr(1947000)},
		{name: "vat excluded marker", in: "1,000,000원 (VAT 별도)", want: ptr(1100000)},
		{name: "vat marker lower case", in: "10,000원 vat 별도", want: ptr(11000)},
		{name: "parenthesised marker", in: "999원(별도)", want: ptr(1098)},
		{name: "no digits", in: "abc", want: nil},
		{name: "empty", in: "", want: nil},
		{name: "separators only", in: ",,,", want: nil},
		{name: "overflow", in: "99999999999999999999999", want: nil},
		{name: "float overflow", in: 1e20, want: nil},
		{name: "float at int64 bound", in: float64(math.MaxInt64), want: nil},
		{name: "float below int64 bound", in: -1e20, want: nil},
		{name: "json number exponent overflow", in: json.Number("1e20"), want: nil},
		{name: "json number digits overflow", in: json.Number("99999999999999999999"), want: nil},
		{name: "json number large in range", in: json.Number("1e15"), want: ptr(1_000_000_000_000_000)},
		{name: "nan", in: math.NaN(), want: nil},
		{name: "unsupported type", in: []string{"1"}, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.in)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}

func TestNormalizeStringPointer(t *testing.T) {
	var nilStr *string
	assert.Nil(t, Normalize(nilStr))
	s := "8,000원"
	got := Normalize(&s)
	require.NotNil(t, got)
	assert.Equal(t, int64(8000), *got)
}

func TestTaxExcluded(t *testing.T) {
	assert.True(t, TaxExcluded("1,000원 (VAT 별도)"))
	assert.True(t, TaxExcluded("1,000원(별도)"))
	assert.False(t, TaxExcluded("1,000원 (VAT 포함)"))
}
