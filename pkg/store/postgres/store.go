package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/platinummonkey/gatekeeper/pkg/apperr"
	"github.com/platinummonkey/gatekeeper/pkg/store"
)

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// queries implements store.Tx on top of any querier
type queries struct {
	q querier
}

// Store is the PostgreSQL authorization store
type Store struct {
	queries
	db *sql.DB
}

// NewStore wraps an open database handle
func NewStore(db *sql.DB) *Store {
	return &Store{queries: queries{q: db}, db: db}
}

// DB returns the underlying handle
func (s *Store) DB() *sql.DB {
	return s.db
}

// InTx runs fn in a read committed transaction. Row locks taken through the
// Locker methods are held until commit or rollback.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &queries{q: tx}); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapError(fmt.Errorf("failed to commit transaction: %w", err), "")
	}
	return nil
}

// Ping checks connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database handle
func (s *Store) Close() error {
	return s.db.Close()
}

// PostgreSQL error codes handled by mapError
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// constraintFields names the column behind each unique constraint
var constraintFields = map[string]string{
	"users_email_lower_key":                "email",
	"organizations_slug_key":               "slug",
	"sessions_access_token_key":            "access_token",
	"identity_links_provider_identity_key": "provider_user_id",
	"identity_links_user_provider_key":     "provider_type",
}

// mapError converts driver errors into apperr kinds
func mapError(err error, resource string) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch string(pqErr.Code) {
	case codeUniqueViolation:
		e := apperr.Wrap(apperr.KindAlreadyExists, err, fmt.Sprintf("%s already exists", resourceOr(resource))).
			WithDetail("constraint", pqErr.Constraint)
		if field, ok := constraintFields[pqErr.Constraint]; ok {
			e = e.WithDetail("field", field)
		}
		return e
	case codeSerializationFailure, codeDeadlockDetected:
		return apperr.Wrap(apperr.KindConflict, err, "concurrent update conflict").WithDetail("resource", resource)
	default:
		return err
	}
}

func resourceOr(resource string) string {
	if resource == "" {
		return "record"
	}
	return resource
}

// checkAffected turns a zero-row update into a not-found error
func checkAffected(result sql.Result, resource, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return store.NotFound(resource, id)
	}
	return nil
}

func marshalMetadata(m map[string]interface{}) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return data, nil
}

func unmarshalMetadata(data []byte) (map[string]interface{}, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return m, nil
}

var _ store.Store = (*Store)(nil)
