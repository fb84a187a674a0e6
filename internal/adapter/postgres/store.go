package postgres

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/ReleaseForge/internal/port/database"
)

// nextStamp is the SQL expression for a row's new updated_at. It never goes
// backwards even if the server clock does, so stamps stay strictly ordered.
const nextStamp = "GREATEST(clock_timestamp(), updated_at + interval '1 microsecond')"

// Store implements database.Store on PostgreSQL. Conditional writes lock the
// row with SELECT ... FOR UPDATE, compare stamps in Go and write inside the
// same transaction.
type Store struct {
	pool *pgxpool.Pool
}

var _ database.Store = (*Store)(nil)

// NewStore creates a new Store with the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}
