package catalog

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/vladislavdragonenkov/cartstore/internal/domain"
)

type productRecord struct {
	ID    string       `mapstructure:"id"`
	Slug  string       `mapstructure:"slug"`
	Title string       `mapstructure:"title"`
	Price string       `mapstructure:"price"`
	Image *imageRecord `mapstructure:"image"`
}

type imageRecord struct {
	ID        string `mapstructure:"id"`
	URL       string `mapstructure:"url"`
	AltText   string `mapstructure:"alt_text"`
	SortOrder int    `mapstructure:"sort_order"`
}

// LoadFile читает сид каталога (YAML, JSON или TOML по расширению) из ключа "products".
func LoadFile(path string) ([]domain.Product, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read catalog file %s: %w", path, err)
	}

	var records []productRecord
	if err := v.UnmarshalKey("products", &records); err != nil {
		return nil, fmt.Errorf("decode catalog file %s: %w", path, err)
	}

	products := make([]domain.Product, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for i, rec := range records {
		price, err := decimal.NewFromString(rec.Price)
		if err != nil {
			return nil, fmt.Errorf("catalog product %d (%s): invalid price %q: %w", i, rec.ID, rec.Price, err)
		}

		p := domain.Product{
			ID:    rec.ID,
			Slug:  rec.Slug,
			Title: rec.Title,
			Price: price,
		}
		if rec.Image != nil && rec.Image.URL != "" {
			p.PrimaryImage = &domain.Image{
				ID:        rec.Image.ID,
				URL:       rec.Image.URL,
				AltText:   rec.Image.AltText,
				IsPrimary: true,
				SortOrder: rec.Image.SortOrder,
			}
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("catalog product %d (%s): %w", i, rec.ID, err)
		}
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("catalog product %d: duplicate id %s", i, p.ID)
		}
		seen[p.ID] = struct{}{}
		products = append(products, p)
	}

	return products, nil
}
