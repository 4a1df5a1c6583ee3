package rules

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"relaypoint/internal/types"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx. The
// store accepts this so the same code works inside or outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ types.RuleStore = (*PGStore)(nil)

// PGStore reads notification rules from the notification_rules table. The
// scope, template, and delivery columns are JSONB and hydrate through the
// Scanner implementations on the types package.
type PGStore struct {
	db DBTX
}

// NewPGStore creates a PGStore backed by the given connection (pool or
// transaction).
func NewPGStore(db DBTX) *PGStore {
	return &PGStore{db: db}
}

// ListRules returns the rules bound to trigger, ordered by the position the
// configuration surface assigned them.
func (s *PGStore) ListRules(ctx context.Context, trigger types.TriggerID) ([]types.Rule, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, title, trigger, scope, template, delivery
		 FROM notification_rules
		 WHERE trigger = $1 AND enabled
		 ORDER BY position, id`,
		string(trigger),
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeRuleStoreRead, "failed to list notification rules", err)
	}
	defer rows.Close()

	var out []types.Rule
	for rows.Next() {
		var r types.Rule
		if err := rows.Scan(&r.ID, &r.Title, &r.Trigger, &r.Scope, &r.Template, &r.Delivery); err != nil {
			return nil, types.NewAppError(types.ErrCodeRuleStoreRead, "failed to scan notification rule row", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeRuleStoreRead, "error iterating notification rule rows", err)
	}

	if out == nil {
		out = []types.Rule{}
	}
	return out, nil
}

// Upsert inserts a rule or updates the existing row with the same ID. New
// rows get the next position after the current maximum for their trigger.
func (s *PGStore) Upsert(ctx context.Context, rule types.Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO notification_rules (id, title, trigger, scope, template, delivery, enabled, position)
		 VALUES ($1, $2, $3, $4, $5, $6, TRUE,
		         (SELECT COALESCE(MAX(position), 0) + 1 FROM notification_rules WHERE trigger = $3))
		 ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			trigger = EXCLUDED.trigger,
			scope = EXCLUDED.scope,
			template = EXCLUDED.template,
			delivery = EXCLUDED.delivery`,
		rule.ID,
		rule.Title,
		string(rule.Trigger),
		rule.Scope,
		rule.Template,
		rule.Delivery,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeRuleStoreRead, "failed to upsert notification rule", err)
	}
	return nil
}

// Delete removes a rule. Deleting an absent ID is a no-op.
func (s *PGStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM notification_rules WHERE id = $1`,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeRuleStoreRead, "failed to delete notification rule", err)
	}
	return nil
}
