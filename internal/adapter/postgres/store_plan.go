package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Strob0t/ReleaseForge/internal/domain/plan"
	"github.com/Strob0t/ReleaseForge/internal/domain/stamp"
)

const planColumns = `id, name, owner, status, start_date, end_date, description, product_id,
	phases, feature_ids, components, calendar_ids, milestones, refs, created_at, updated_at`

func scanPlan(row scannable) (*plan.Plan, error) {
	var p plan.Plan
	err := row.Scan(&p.ID, &p.Name, &p.Owner, &p.Status, &p.StartDate, &p.EndDate, &p.Description, &p.ProductID,
		&p.Phases, &p.FeatureIDs, &p.Components, &p.CalendarIDs, &p.Milestones, &p.References,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.StartDate = p.StartDate.UTC()
	p.EndDate = p.EndDate.UTC()
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func (s *Store) ListPlans(ctx context.Context) ([]plan.Plan, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+planColumns+` FROM plans ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var out []plan.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		out = append(out, *p)
	}
	return orEmpty(out), rows.Err()
}

func (s *Store) GetPlan(ctx context.Context, id string) (*plan.Plan, error) {
	p, err := scanPlan(s.pool.QueryRow(ctx, `SELECT `+planColumns+` FROM plans WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundWrap(err, "get plan %s", id)
	}
	return p, nil
}

func (s *Store) CreatePlan(ctx context.Context, req plan.CreateRequest) (*plan.Plan, error) {
	p, err := scanPlan(s.pool.QueryRow(ctx, `
		INSERT INTO plans (id, name, owner, status, start_date, end_date, description, product_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+planColumns,
		uuid.NewString(), req.Name, req.Owner, req.Status, req.StartDate, req.EndDate, req.Description, req.ProductID))
	if err != nil {
		return nil, fmt.Errorf("create plan: %w", err)
	}
	return p, nil
}

// UpdatePlan applies patch when expected is still current. The whole row is
// rewritten under the row lock, so fields outside the patch keep the values
// that were read in the same transaction.
func (s *Store) UpdatePlan(ctx context.Context, id string, patch plan.Patch, expected time.Time) (*plan.Plan, error) {
	var saved *plan.Plan
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		cur, err := scanPlan(tx.QueryRow(ctx, `SELECT `+planColumns+` FROM plans WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return notFoundWrap(err, "update plan %s", id)
		}
		if err := stamp.Check(expected, cur.UpdatedAt); err != nil {
			return fmt.Errorf("update plan %s: %w", id, err)
		}
		next, err := plan.ApplyPatch(cur, patch)
		if err != nil {
			return err
		}
		saved, err = scanPlan(tx.QueryRow(ctx, `
			UPDATE plans SET
				name = $2, owner = $3, status = $4, start_date = $5, end_date = $6,
				description = $7, product_id = $8, phases = $9, feature_ids = $10,
				components = $11, calendar_ids = $12, milestones = $13, refs = $14,
				updated_at = `+nextStamp+`
			WHERE id = $1
			RETURNING `+planColumns,
			id, next.Name, next.Owner, next.Status, next.StartDate, next.EndDate,
			next.Description, next.ProductID, orEmpty(next.Phases), orEmpty(next.FeatureIDs),
			orEmpty(next.Components), orEmpty(next.CalendarIDs), orEmpty(next.Milestones), orEmpty(next.References)))
		if err != nil {
			return fmt.Errorf("update plan %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *Store) DeletePlan(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM plans WHERE id = $1`, id)
	return execExpectOne(tag, err, "delete plan %s", id)
}
