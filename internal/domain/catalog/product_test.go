package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want Size
	}{
		{"S", SizeS},
		{"m", SizeM},
		{" xl ", SizeXL},
		{"XXL", SizeXXL},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSize(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSize_Unsupported(t *testing.T) {
	for _, in := range []string{"", "XS", "XXXL", "medium"} {
		_, err := ParseSize(in)
		assert.ErrorIs(t, err, ErrInvalidSize, "input %q", in)
	}
}

func TestProduct_StockFor(t *testing.T) {
	p := Product{
		ID: "prod-1",
		Inventory: []StockLevel{
			{Size: SizeS, Quantity: 3},
			{Size: SizeM, Quantity: 0},
		},
	}

	qty, ok := p.StockFor(SizeS)
	assert.True(t, ok)
	assert.Equal(t, 3, qty)

	qty, ok = p.StockFor(SizeM)
	assert.True(t, ok)
	assert.Equal(t, 0, qty)

	_, ok = p.StockFor(SizeXL)
	assert.False(t, ok)
}

func TestIndex(t *testing.T) {
	products := []Product{{ID: "a", Name: "Tee"}, {ID: "b", Name: "Hoodie"}}
	byID := Index(products)

	require.Len(t, byID, 2)
	assert.Equal(t, "Hoodie", byID["b"].Name)
	_, ok := byID["c"]
	assert.False(t, ok)
}
