package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Strob0t/ReleaseForge/internal/domain/product"
	"github.com/Strob0t/ReleaseForge/internal/domain/stamp"
)

const productColumns = `id, name, owner, components, created_at, updated_at`

func scanProduct(row scannable) (*product.Product, error) {
	var p product.Product
	if err := row.Scan(&p.ID, &p.Name, &p.Owner, &p.Components, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]product.Product, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var out []product.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, *p)
	}
	return orEmpty(out), rows.Err()
}

func (s *Store) GetProduct(ctx context.Context, id string) (*product.Product, error) {
	p, err := scanProduct(s.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundWrap(err, "get product %s", id)
	}
	return p, nil
}

func (s *Store) CreateProduct(ctx context.Context, req product.CreateRequest) (*product.Product, error) {
	p, err := scanProduct(s.pool.QueryRow(ctx, `
		INSERT INTO products (id, name, owner, components)
		VALUES ($1, $2, $3, $4)
		RETURNING `+productColumns,
		uuid.NewString(), req.Name, req.Owner, withIDs(req.Components)))
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	return p, nil
}

// UpdateComponents merges u into the product's component list under a row
// lock, so concurrent partial updates never drop each other's components.
func (s *Store) UpdateComponents(ctx context.Context, productID string, u product.ComponentsUpdate, expected time.Time) (*product.Product, error) {
	var saved *product.Product
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		cur, err := scanProduct(tx.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, productID))
		if err != nil {
			return notFoundWrap(err, "update components of product %s", productID)
		}
		if err := stamp.Check(expected, cur.UpdatedAt); err != nil {
			return fmt.Errorf("update components of product %s: %w", productID, err)
		}
		merged, err := u.Merge(cur.Components)
		if err != nil {
			return fmt.Errorf("update components of product %s: %w", productID, err)
		}
		merged = withIDs(merged)
		if err := product.ValidateComponents(merged); err != nil {
			return err
		}
		saved, err = scanProduct(tx.QueryRow(ctx, `
			UPDATE products SET components = $2, updated_at = `+nextStamp+`
			WHERE id = $1
			RETURNING `+productColumns, productID, merged))
		if err != nil {
			return fmt.Errorf("update components of product %s: %w", productID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// withIDs assigns ids to components created without one.
func withIDs(cs []product.Component) []product.Component {
	out := make([]product.Component, len(cs))
	for i, c := range cs {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		out[i] = c
	}
	return out
}
