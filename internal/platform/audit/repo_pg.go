package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/caremesh/caremesh/internal/platform/db"
)

// RepoPG persists audit entries in the audit_log table. Inserts route
// through the context transaction when one is present, which is what makes
// high-sensitivity writes atomic with their business mutation.
type RepoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) *RepoPG {
	return &RepoPG{pool: pool}
}

const auditCols = `id, actor_id, action, entity_type, entity_id, organization_id,
	details, ip_address, user_agent, cross_tenant, idempotency_key, recorded_at`

// Insert appends one entry. The partial unique index on idempotency_key
// makes retried requests collapse to a single stored entry; a conflict is
// success, not an error.
func (r *RepoPG) Insert(ctx context.Context, e *Entry) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}

	var key *string
	if e.IdempotencyKey != "" {
		key = &e.IdempotencyKey
	}

	const query = `
		INSERT INTO audit_log (` + auditCols + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (idempotency_key) WHERE idempotency_key IS NOT NULL
		DO NOTHING`

	_, err = db.Runner(ctx, r.pool).Exec(ctx, query,
		e.ID, e.ActorID, string(e.Action), e.EntityType, e.EntityID, e.OrganizationID,
		details, e.IPAddress, e.UserAgent, e.CrossTenant, key, e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// Search filters the trail with exact-match predicates. Results are
// ordered by entry ID, which for ULIDs is submission order.
func (r *RepoPG) Search(ctx context.Context, q Query) ([]*Entry, int, error) {
	var (
		conds []string
		args  []interface{}
	)

	add := func(cond string, val interface{}) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if q.OrgID != uuid.Nil {
		add("organization_id = $%d", q.OrgID)
	}
	if q.ActorID != uuid.Nil {
		add("actor_id = $%d", q.ActorID)
	}
	if q.EntityType != "" {
		add("entity_type = $%d", q.EntityType)
	}
	if q.EntityID != uuid.Nil {
		add("entity_id = $%d", q.EntityID)
	}
	if q.Action != "" {
		add("action = $%d", string(q.Action))
	}
	if !q.From.IsZero() {
		add("recorded_at >= $%d", q.From)
	}
	if !q.To.IsZero() {
		add("recorded_at <= $%d", q.To)
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	limit := q.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	runner := db.Runner(ctx, r.pool)

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM audit_log %s", where)
	if err := runner.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit entries: %w", err)
	}

	query := fmt.Sprintf(
		"SELECT %s FROM audit_log %s ORDER BY id DESC LIMIT %d OFFSET %d",
		auditCols, where, limit, offset,
	)
	rows, err := runner.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate audit entries: %w", err)
	}

	return entries, total, nil
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var (
		e       Entry
		action  string
		details []byte
		key     *string
	)
	err := row.Scan(
		&e.ID, &e.ActorID, &action, &e.EntityType, &e.EntityID, &e.OrganizationID,
		&details, &e.IPAddress, &e.UserAgent, &e.CrossTenant, &key, &e.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("scan audit entry: %w", err)
	}

	e.Action = Action(action)
	if key != nil {
		e.IdempotencyKey = *key
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &e.Details); err != nil {
			return nil, fmt.Errorf("unmarshal audit details: %w", err)
		}
	}
	return &e, nil
}
