package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/andrsadr/koravi/internal/domain"
)

const clientColumns = `id, client_id, first_name, last_name, email, phone, date_of_birth, gender, occupation,
	avatar_url, address_line1, address_line2, city, state, postal_code, country, status, labels,
	notes, alerts, last_visit, total_visits, lifetime_value, created_at, updated_at`

// searchText is matched with ILIKE next to the tsvector so partial words
// and phone fragments still hit.
const searchText = `(first_name || ' ' || last_name || ' ' || coalesce(email, '') || ' ' ||
	coalesce(phone, '') || ' ' || coalesce(occupation, '') || ' ' || array_to_string(labels, ' '))`

// DefaultPageSize is used when an offset is given without a limit
const DefaultPageSize = 10

// PostgresClientRepository implements domain.ClientRepository using PostgreSQL
type PostgresClientRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresClientRepository creates a new client repository
func NewPostgresClientRepository(db *sql.DB, logger *slog.Logger) *PostgresClientRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresClientRepository{db: db, logger: logger}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row rowScanner) (*domain.Client, error) {
	c := &domain.Client{}
	var status string
	err := row.Scan(
		&c.ID, &c.ClientID, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &c.DateOfBirth, &c.Gender,
		&c.Occupation, &c.AvatarURL, &c.AddressLine1, &c.AddressLine2, &c.City, &c.State, &c.PostalCode,
		&c.Country, &status, pq.Array(&c.Labels), &c.Notes, &c.Alerts, &c.LastVisit, &c.TotalVisits,
		&c.LifetimeValue, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Status = domain.Status(status)
	if c.Labels == nil {
		c.Labels = []string{}
	}
	return c, nil
}

// listQuery builds the select for a filter. Filters apply in order:
// text search, status, labels, then limit and offset.
func listQuery(filter domain.ListFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q := strings.TrimSpace(filter.Search); q != "" {
		where = append(where, searchCondition(q, arg))
	}
	if filter.Status.Valid() {
		where = append(where, "status = "+arg(string(filter.Status)))
	}
	if len(filter.Labels) > 0 {
		where = append(where, "labels && "+arg(pq.Array(filter.Labels)))
	}

	var b strings.Builder
	b.WriteString("SELECT " + clientColumns + " FROM clients")
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY updated_at DESC")

	limit := filter.Limit
	if filter.Offset > 0 && limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > 0 {
		b.WriteString(" LIMIT " + arg(limit))
	}
	if filter.Offset > 0 {
		b.WriteString(" OFFSET " + arg(filter.Offset))
	}
	return b.String(), args
}

func searchCondition(q string, arg func(any) string) string {
	return fmt.Sprintf("(search_vector @@ plainto_tsquery('simple', %s) OR %s ILIKE %s)",
		arg(q), searchText, arg("%"+escapeLike(q)+"%"))
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// List returns clients matching the filter, most recently updated first
func (r *PostgresClientRepository) List(ctx context.Context, filter domain.ListFilter) ([]*domain.Client, error) {
	query, args := listQuery(filter)
	return r.queryClients(ctx, "list clients", query, args...)
}

// Search runs a free-text search ordered by most recently updated
func (r *PostgresClientRepository) Search(ctx context.Context, q string, limit int) ([]*domain.Client, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return []*domain.Client{}, nil
	}
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	query := "SELECT " + clientColumns + " FROM clients WHERE " + searchCondition(q, arg) +
		" ORDER BY updated_at DESC LIMIT " + arg(limit)
	return r.queryClients(ctx, "search clients", query, args...)
}

func (r *PostgresClientRepository) queryClients(ctx context.Context, op, query string, args ...any) ([]*domain.Client, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, normalize(op, err)
	}
	defer rows.Close()

	out := []*domain.Client{}
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, normalize(op, fmt.Errorf("failed to scan client: %w", err))
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, normalize(op, err)
	}
	return out, nil
}

// Get retrieves a client by ID
func (r *PostgresClientRepository) Get(ctx context.Context, id string) (*domain.Client, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+clientColumns+" FROM clients WHERE id = $1", id)
	c, err := scanClient(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isInvalidID(err) {
			return nil, domain.NotFoundError("get client", id)
		}
		return nil, normalize("get client", err)
	}
	return c, nil
}

// Create inserts a client and returns the stored row
func (r *PostgresClientRepository) Create(ctx context.Context, n domain.NewClient) (*domain.Client, error) {
	n.ApplyDefaults()
	query := `
		INSERT INTO clients (first_name, last_name, email, phone, date_of_birth, gender, occupation,
			avatar_url, address_line1, address_line2, city, state, postal_code, country, status, labels,
			notes, alerts, last_visit, total_visits, lifetime_value)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		RETURNING ` + clientColumns
	row := r.db.QueryRowContext(ctx, query,
		n.FirstName, n.LastName, n.Email, n.Phone, n.DateOfBirth, n.Gender, n.Occupation,
		n.AvatarURL, n.AddressLine1, n.AddressLine2, n.City, n.State, n.PostalCode, n.Country,
		string(n.Status), pq.Array(n.Labels), n.Notes, n.Alerts, n.LastVisit, *n.TotalVisits, *n.LifetimeValue,
	)
	c, err := scanClient(row)
	if err != nil {
		return nil, normalize("create client", err)
	}
	r.logger.Debug("client created", slog.String("client_id", c.ID))
	return c, nil
}

// Update applies the set fields of u and refreshes updated_at
func (r *PostgresClientRepository) Update(ctx context.Context, id string, u domain.ClientUpdate, now time.Time) (*domain.Client, error) {
	var (
		sets []string
		args []any
	)
	for _, col := range u.Columns() {
		v := col.Value
		switch typed := v.(type) {
		case []string:
			if typed == nil {
				typed = []string{}
			}
			v = pq.Array(typed)
		case domain.Status:
			v = string(typed)
		}
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col.Name, len(args)))
	}
	args = append(args, now)
	sets = append(sets, fmt.Sprintf("updated_at = GREATEST($%d::timestamptz, created_at)", len(args)))
	args = append(args, id)

	query := fmt.Sprintf("UPDATE clients SET %s WHERE id = $%d RETURNING %s",
		strings.Join(sets, ", "), len(args), clientColumns)

	c, err := scanClient(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isInvalidID(err) {
			return nil, domain.NotFoundError("update client", id)
		}
		return nil, normalize("update client", err)
	}
	return c, nil
}

// Delete removes a client. Deleting a missing id is not an error.
func (r *PostgresClientRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM clients WHERE id = $1", id)
	if err != nil {
		if isInvalidID(err) {
			return nil
		}
		return normalize("delete client", err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		r.logger.Debug("delete matched no client", slog.String("client_id", id))
	}
	return nil
}

// CountByStatus aggregates client counts on the server
func (r *PostgresClientRepository) CountByStatus(ctx context.Context) (*domain.Stats, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM clients GROUP BY status")
	if err != nil {
		return nil, normalize("count clients", err)
	}
	defer rows.Close()

	stats := &domain.Stats{}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, normalize("count clients", err)
		}
		stats.Add(domain.Status(status), n)
	}
	if err := rows.Err(); err != nil {
		return nil, normalize("count clients", err)
	}
	return stats, nil
}

// ListStatuses returns the status of every client
func (r *PostgresClientRepository) ListStatuses(ctx context.Context) ([]domain.Status, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT status FROM clients")
	if err != nil {
		return nil, normalize("list statuses", err)
	}
	defer rows.Close()

	var out []domain.Status
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, normalize("list statuses", err)
		}
		out = append(out, domain.Status(s))
	}
	if err := rows.Err(); err != nil {
		return nil, normalize("list statuses", err)
	}
	return out, nil
}

// Ping checks that the clients table is reachable
func (r *PostgresClientRepository) Ping(ctx context.Context) error {
	var one int
	err := r.db.QueryRowContext(ctx, "SELECT 1 FROM clients LIMIT 1").Scan(&one)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return normalize("ping", err)
	}
	return nil
}
