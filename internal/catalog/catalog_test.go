package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/cartstore/internal/domain"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestMemoryLookup(t *testing.T) {
	img := &domain.Image{ID: "i1", URL: "https://cdn/cat.jpg"}
	m := NewMemory(domain.Product{ID: "p1", Title: "Cat Tee", Price: decimal.RequireFromString("24.99"), PrimaryImage: img})

	p, err := m.Lookup(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "Cat Tee", p.Title)

	p.PrimaryImage.URL = "mutated"
	again, err := m.Lookup(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/cat.jpg", again.PrimaryImage.URL)

	_, err = m.Lookup(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestMemoryPut(t *testing.T) {
	m := NewMemory()

	require.NoError(t, m.Put(domain.Product{ID: "b", Price: decimal.NewFromInt(1)}))
	require.NoError(t, m.Put(domain.Product{ID: "a", Price: decimal.NewFromInt(2)}))
	assert.ErrorIs(t, m.Put(domain.Product{ID: "", Price: decimal.NewFromInt(1)}), domain.ErrProductIDRequired)
	assert.ErrorIs(t, m.Put(domain.Product{ID: "c", Price: decimal.NewFromInt(-1)}), domain.ErrPriceNegative)

	list := m.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "b", list[1].ID)
}

func TestLoadFileYAML(t *testing.T) {
	path := writeFile(t, "catalog.yaml", `
products:
  - id: p1
    slug: cat
    title: Cat Tee
    price: "24.99"
    image:
      id: img-1
      url: https://cdn.example.com/cat.jpg
      alt_text: Cat
  - id: p2
    slug: mug
    title: Mug
    price: 9.5
`)

	products, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, products, 2)

	assert.True(t, products[0].Price.Equal(decimal.RequireFromString("24.99")))
	require.NotNil(t, products[0].PrimaryImage)
	assert.Equal(t, "Cat", products[0].PrimaryImage.AltText)
	assert.True(t, products[0].PrimaryImage.IsPrimary)
	assert.True(t, products[1].Price.Equal(decimal.RequireFromString("9.5")))
	assert.Nil(t, products[1].PrimaryImage)
}

func TestLoadFileJSON(t *testing.T) {
	path := writeFile(t, "catalog.json", `{"products":[{"id":"p1","slug":"cat","title":"Cat Tee","price":"24.99"}]}`)

	products, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "cat", products[0].Slug)
}

func TestLoadFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad price", "products:\n  - id: p1\n    price: abc\n"},
		{"negative price", "products:\n  - id: p1\n    price: \"-1\"\n"},
		{"missing id", "products:\n  - slug: x\n    price: \"1\"\n"},
		{"duplicate id", "products:\n  - id: p1\n    price: \"1\"\n  - id: p1\n    price: \"2\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFile(writeFile(t, "catalog.yaml", tt.content))
			assert.Error(t, err)
		})
	}

	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
