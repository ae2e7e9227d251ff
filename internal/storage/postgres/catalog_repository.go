package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/cartstore/internal/domain"
)

type catalogRepository struct {
	db *sql.DB
}

// NewCatalogRepository создаёт каталог товаров поверх таблицы products.
func NewCatalogRepository(store *Store) domain.CatalogRepository {
	return &catalogRepository{db: store.DB()}
}

// Lookup возвращает товар или domain.ErrProductNotFound.
func (r *catalogRepository) Lookup(ctx context.Context, productID string) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		p        domain.Product
		imageID  sql.NullString
		imageURL sql.NullString
		imageAlt string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, slug, title, price, image_id, image_url, image_alt
		FROM products
		WHERE id = $1
	`, productID).Scan(&p.ID, &p.Slug, &p.Title, &p.Price, &imageID, &imageURL, &imageAlt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, domain.ErrProductNotFound
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("lookup product %s: %w", productID, err)
	}

	if imageURL.Valid && imageURL.String != "" {
		p.PrimaryImage = &domain.Image{
			ID:        imageID.String,
			URL:       imageURL.String,
			AltText:   imageAlt,
			IsPrimary: true,
		}
	}
	return p, nil
}

// Upsert добавляет товары или обновляет существующие одной транзакцией.
func (r *catalogRepository) Upsert(ctx context.Context, products ...domain.Product) error {
	for _, p := range products {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("product %q: %w", p.ID, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin catalog upsert: %w", err)
	}

	for _, p := range products {
		var imageID, imageURL sql.NullString
		imageAlt := ""
		if img := p.PrimaryImage; img != nil {
			imageID = sql.NullString{String: img.ID, Valid: img.ID != ""}
			imageURL = sql.NullString{String: img.URL, Valid: img.URL != ""}
			imageAlt = img.AltText
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO products (id, slug, title, price, image_id, image_url, image_alt, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
			ON CONFLICT (id) DO UPDATE
			SET slug = EXCLUDED.slug,
			    title = EXCLUDED.title,
			    price = EXCLUDED.price,
			    image_id = EXCLUDED.image_id,
			    image_url = EXCLUDED.image_url,
			    image_alt = EXCLUDED.image_alt,
			    updated_at = EXCLUDED.updated_at
		`, p.ID, p.Slug, p.Title, p.Price, imageID, imageURL, imageAlt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upsert product %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit catalog upsert: %w", err)
	}
	return nil
}

var _ domain.CatalogRepository = (*catalogRepository)(nil)
