// Package postgres provides a PostgreSQL backed town and user catalog.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/pixil98/go-town/internal/catalog"
)

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// townColumns lists columns returned by town SELECT queries, in scan order.
var townColumns = []string{
	"id", "friendly_name", "password", "creator", "is_public",
	"max_occupancy", "admins", "blockers", "created_at",
}

// userColumns lists columns returned by user SELECT queries, in scan order.
var userColumns = []string{
	"user_name", "password_hash", "email", "gender", "age", "city", "created_at",
}

const uniqueViolation = "23505"

const (
	columnAdmins   = "admins"
	columnBlockers = "blockers"
)

// Catalog implements catalog.Catalog on PostgreSQL.
type Catalog struct {
	db *sql.DB
}

var _ catalog.Catalog = (*Catalog)(nil)

// Open connects to dsn, checks the connection and brings the schema up to date.
func Open(ctx context.Context, dsn string) (*Catalog, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return New(db), nil
}

// New wraps an existing connection pool. The schema must already be migrated.
func New(db *sql.DB) *Catalog {
	return &Catalog{db: db}
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

func (c *Catalog) GetTown(ctx context.Context, id string) (*catalog.TownRecord, error) {
	query, args, err := psq.Select(townColumns...).From("towns").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building town query: %w", err)
	}

	rec, err := scanTown(c.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("town %s: %w", id, catalog.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying town %s: %w", id, err)
	}
	return rec, nil
}

func (c *Catalog) CreateTown(ctx context.Context, rec *catalog.TownRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("validating town: %w", err)
	}

	query, args, err := psq.Insert("towns").
		Columns(townColumns...).
		Values(
			rec.ID,
			rec.FriendlyName,
			rec.Password,
			rec.Creator,
			rec.IsPublic,
			rec.MaxOccupancy,
			pq.Array(nonNil(rec.Admins)),
			pq.Array(nonNil(rec.Blockers)),
			rec.CreatedAt,
		).ToSql()
	if err != nil {
		return fmt.Errorf("building town insert: %w", err)
	}

	_, err = c.db.ExecContext(ctx, query, args...)
	if isUniqueViolation(err) {
		return fmt.Errorf("town %s: %w", rec.ID, catalog.ErrExists)
	}
	if err != nil {
		return fmt.Errorf("inserting town %s: %w", rec.ID, err)
	}
	return nil
}

func (c *Catalog) UpdateTown(ctx context.Context, id string, u catalog.TownUpdate) error {
	qb := psq.Update("towns").Where(sq.Eq{"id": id})
	if u.FriendlyName != nil {
		qb = qb.Set("friendly_name", *u.FriendlyName)
	}
	if u.IsPublic != nil {
		qb = qb.Set("is_public", *u.IsPublic)
	}
	if u.FriendlyName == nil && u.IsPublic == nil {
		return nil
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return fmt.Errorf("building town update: %w", err)
	}

	return c.execOne(ctx, "town", id, query, args)
}

func (c *Catalog) DeleteTown(ctx context.Context, id string) error {
	query, args, err := psq.Delete("towns").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("building town delete: %w", err)
	}

	return c.execOne(ctx, "town", id, query, args)
}

func (c *Catalog) ListTowns(ctx context.Context) ([]*catalog.TownRecord, error) {
	return c.listTowns(ctx, psq.Select(townColumns...).From("towns"))
}

func (c *Catalog) ListPublicTowns(ctx context.Context) ([]*catalog.TownRecord, error) {
	return c.listTowns(ctx, psq.Select(townColumns...).From("towns").Where(sq.Eq{"is_public": true}))
}

func (c *Catalog) listTowns(ctx context.Context, qb sq.SelectBuilder) ([]*catalog.TownRecord, error) {
	query, args, err := qb.OrderBy("friendly_name", "id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("building town list: %w", err)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing towns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []*catalog.TownRecord{}
	for rows.Next() {
		rec, err := scanTown(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning town: %w", err)
		}
		out = append(out, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating town rows: %w", err)
	}
	return out, nil
}

func (c *Catalog) AddBlocker(ctx context.Context, townID, name string) (bool, error) {
	return c.appendToList(ctx, columnBlockers, townID, name)
}

func (c *Catalog) RemoveBlocker(ctx context.Context, townID, name string) (bool, error) {
	return c.removeFromList(ctx, columnBlockers, townID, name)
}

func (c *Catalog) AddAdmin(ctx context.Context, townID, name string) (bool, error) {
	return c.appendToList(ctx, columnAdmins, townID, name)
}

func (c *Catalog) RemoveAdmin(ctx context.Context, townID, name string) (bool, error) {
	return c.removeFromList(ctx, columnAdmins, townID, name)
}

// appendToList adds name to an array column in one statement, so concurrent
// appends never lose each other's writes.
func (c *Catalog) appendToList(ctx context.Context, column, townID, name string) (bool, error) {
	qb := psq.Update("towns").
		Set(column, sq.Expr(fmt.Sprintf("array_append(%s, ?::text)", column), name)).
		Where(sq.Eq{"id": townID}).
		Where(fmt.Sprintf("NOT (?::text = ANY(%s))", column), name)

	return c.mutateList(ctx, qb, townID)
}

func (c *Catalog) removeFromList(ctx context.Context, column, townID, name string) (bool, error) {
	qb := psq.Update("towns").
		Set(column, sq.Expr(fmt.Sprintf("array_remove(%s, ?::text)", column), name)).
		Where(sq.Eq{"id": townID}).
		Where(fmt.Sprintf("?::text = ANY(%s)", column), name)

	return c.mutateList(ctx, qb, townID)
}

// mutateList runs a guarded list update. When no row changed it tells a
// missing town apart from a list that was already in the requested state.
func (c *Catalog) mutateList(ctx context.Context, qb sq.UpdateBuilder, townID string) (bool, error) {
	query, args, err := qb.ToSql()
	if err != nil {
		return false, fmt.Errorf("building list update: %w", err)
	}

	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("updating town %s: %w", townID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading affected rows: %w", err)
	}
	if n > 0 {
		return true, nil
	}

	exists, err := c.townExists(ctx, townID)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, fmt.Errorf("town %s: %w", townID, catalog.ErrNotFound)
	}
	return false, nil
}

func (c *Catalog) townExists(ctx context.Context, id string) (bool, error) {
	query, args, err := psq.Select("1").From("towns").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return false, fmt.Errorf("building existence query: %w", err)
	}

	var one int
	err = c.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking town %s: %w", id, err)
	}
	return true, nil
}

func (c *Catalog) CreateUser(ctx context.Context, u *catalog.UserRecord) error {
	if err := u.Validate(); err != nil {
		return fmt.Errorf("validating user: %w", err)
	}

	query, args, err := psq.Insert("users").
		Columns(userColumns...).
		Values(u.UserName, u.PasswordHash, u.Email, u.Gender, u.Age, u.City, u.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("building user insert: %w", err)
	}

	_, err = c.db.ExecContext(ctx, query, args...)
	if isUniqueViolation(err) {
		return fmt.Errorf("user %s: %w", u.UserName, catalog.ErrExists)
	}
	if err != nil {
		return fmt.Errorf("inserting user %s: %w", u.UserName, err)
	}
	return nil
}

func (c *Catalog) GetUser(ctx context.Context, userName string) (*catalog.UserRecord, error) {
	query, args, err := psq.Select(userColumns...).
		From("users").
		Where("LOWER(user_name) = LOWER(?)", userName).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building user query: %w", err)
	}

	var u catalog.UserRecord
	err = c.db.QueryRowContext(ctx, query, args...).Scan(
		&u.UserName, &u.PasswordHash, &u.Email, &u.Gender, &u.Age, &u.City, &u.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", userName, catalog.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying user %s: %w", userName, err)
	}
	return &u, nil
}

func (c *Catalog) UpdateUser(ctx context.Context, u *catalog.UserRecord) error {
	if err := u.Validate(); err != nil {
		return fmt.Errorf("validating user: %w", err)
	}

	query, args, err := psq.Update("users").
		Set("password_hash", u.PasswordHash).
		Set("email", u.Email).
		Set("gender", u.Gender).
		Set("age", u.Age).
		Set("city", u.City).
		Where("LOWER(user_name) = LOWER(?)", u.UserName).
		ToSql()
	if err != nil {
		return fmt.Errorf("building user update: %w", err)
	}

	return c.execOne(ctx, "user", u.UserName, query, args)
}

// execOne runs a statement that must touch exactly one row.
func (c *Catalog) execOne(ctx context.Context, kind, id, query string, args []any) error {
	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("writing %s %s: %w", kind, id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, catalog.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTown(row rowScanner) (*catalog.TownRecord, error) {
	var rec catalog.TownRecord
	err := row.Scan(
		&rec.ID,
		&rec.FriendlyName,
		&rec.Password,
		&rec.Creator,
		&rec.IsPublic,
		&rec.MaxOccupancy,
		pq.Array(&rec.Admins),
		pq.Array(&rec.Blockers),
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Admins = nonNil(rec.Admins)
	rec.Blockers = nonNil(rec.Blockers)
	return &rec, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
