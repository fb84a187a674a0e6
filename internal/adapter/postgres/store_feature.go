package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Strob0t/ReleaseForge/internal/domain/feature"
	"github.com/Strob0t/ReleaseForge/internal/domain/stamp"
)

const featureColumns = `id, product_id, name, description, status, created_at, updated_at`

func scanFeature(row scannable) (*feature.Feature, error) {
	var f feature.Feature
	if err := row.Scan(&f.ID, &f.ProductID, &f.Name, &f.Description, &f.Status, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	f.CreatedAt = f.CreatedAt.UTC()
	f.UpdatedAt = f.UpdatedAt.UTC()
	return &f, nil
}

// ListFeatures returns features ordered by name, restricted to productID
// unless it is empty.
func (s *Store) ListFeatures(ctx context.Context, productID string) ([]feature.Feature, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+featureColumns+` FROM features
		WHERE $1 = '' OR product_id = $1
		ORDER BY name`, productID)
	if err != nil {
		return nil, fmt.Errorf("list features: %w", err)
	}
	defer rows.Close()

	var out []feature.Feature
	for rows.Next() {
		f, err := scanFeature(rows)
		if err != nil {
			return nil, fmt.Errorf("scan feature: %w", err)
		}
		out = append(out, *f)
	}
	return orEmpty(out), rows.Err()
}

func (s *Store) GetFeature(ctx context.Context, id string) (*feature.Feature, error) {
	f, err := scanFeature(s.pool.QueryRow(ctx, `SELECT `+featureColumns+` FROM features WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundWrap(err, "get feature %s", id)
	}
	return f, nil
}

func (s *Store) CreateFeature(ctx context.Context, req feature.CreateRequest) (*feature.Feature, error) {
	f, err := scanFeature(s.pool.QueryRow(ctx, `
		INSERT INTO features (id, product_id, name, description, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+featureColumns,
		uuid.NewString(), req.ProductID, req.Name, req.Description, feature.StatusPlanned))
	if err != nil {
		return nil, fmt.Errorf("create feature: %w", err)
	}
	return f, nil
}

func (s *Store) UpdateFeatureStatus(ctx context.Context, id string, status feature.Status, expected time.Time) (*feature.Feature, error) {
	var saved *feature.Feature
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		cur, err := scanFeature(tx.QueryRow(ctx, `SELECT `+featureColumns+` FROM features WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return notFoundWrap(err, "update feature %s", id)
		}
		if err := stamp.Check(expected, cur.UpdatedAt); err != nil {
			return fmt.Errorf("update feature %s: %w", id, err)
		}
		if err := feature.ValidateTransition(cur.Status, status); err != nil {
			return err
		}
		saved, err = scanFeature(tx.QueryRow(ctx, `
			UPDATE features SET status = $2, updated_at = `+nextStamp+`
			WHERE id = $1
			RETURNING `+featureColumns, id, status))
		if err != nil {
			return fmt.Errorf("update feature %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}
