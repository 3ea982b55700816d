package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ricirt/plinko-sync/internal/domain"
)

// PostgresGateway applies queued mutations directly to PostgreSQL tables.
type PostgresGateway struct {
	pool *pgxpool.Pool
}

// NewPostgresGateway returns a Gateway backed by the given pool.
func NewPostgresGateway(pool *pgxpool.Pool) *PostgresGateway {
	return &PostgresGateway{pool: pool}
}

func (g *PostgresGateway) Apply(ctx context.Context, item domain.QueueItem) error {
	sql, args, err := buildStatement(item)
	if err != nil {
		return Permanent(err)
	}

	tag, err := g.pool.Exec(ctx, sql, args...)
	if err != nil {
		return classifyPgError(fmt.Errorf("%s %s: %w", item.Op, item.RowKey(), err))
	}

	// An update that matched nothing can never succeed on replay.
	if item.Op == domain.OpUpdate && tag.RowsAffected() == 0 {
		return Permanent(fmt.Errorf("update %s: %w", item.RowKey(), domain.ErrNotFound))
	}
	return nil
}

func (g *PostgresGateway) Ping(ctx context.Context) error {
	return g.pool.Ping(ctx)
}

func (g *PostgresGateway) ListPeriods(ctx context.Context) ([]domain.Period, error) {
	rows, err := g.pool.Query(ctx,
		`SELECT id, nickname, points, chips FROM periods ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list periods: %w", err)
	}
	periods, err := pgx.CollectRows(rows, pgx.RowToStructByName[domain.Period])
	if err != nil {
		return nil, fmt.Errorf("scan periods: %w", err)
	}
	return periods, nil
}

// buildStatement renders the SQL for one item. Identifiers come from the
// table schema and are quoted; values are always bound parameters.
//
//	insert → INSERT ... ON CONFLICT (pk) DO NOTHING   (replay-safe)
//	update → UPDATE ... SET ... WHERE pk = $n
//	delete → DELETE ... WHERE pk = $1                  (missing row is fine)
func buildStatement(item domain.QueueItem) (string, []any, error) {
	schema, key, err := target(item)
	if err != nil {
		return "", nil, err
	}
	cols, err := columns(schema, item.Payload)
	if err != nil {
		return "", nil, err
	}

	table := pgx.Identifier{string(schema.Name)}.Sanitize()
	pk := pgx.Identifier{schema.PrimaryKey}.Sanitize()

	switch item.Op {
	case domain.OpInsert:
		names := make([]string, len(cols))
		params := make([]string, len(cols))
		args := make([]any, len(cols))
		for i, col := range cols {
			names[i] = pgx.Identifier{col}.Sanitize()
			params[i] = fmt.Sprintf("$%d", i+1)
			args[i] = normalize(item.Payload[col])
		}
		sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			table, strings.Join(names, ", "), strings.Join(params, ", "))
		if key != nil {
			sql += fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", pk)
		}
		return sql, args, nil

	case domain.OpUpdate:
		var sets []string
		var args []any
		for _, col := range cols {
			if col == schema.PrimaryKey {
				continue
			}
			args = append(args, normalize(item.Payload[col]))
			sets = append(sets, fmt.Sprintf("%s = $%d", pgx.Identifier{col}.Sanitize(), len(args)))
		}
		if len(sets) == 0 {
			return "", nil, fmt.Errorf("update %s: no columns to set", item.RowKey())
		}
		args = append(args, key)
		sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d",
			table, strings.Join(sets, ", "), pk, len(args))
		return sql, args, nil

	case domain.OpDelete:
		return fmt.Sprintf("DELETE FROM %s WHERE %s = $1", table, pk), []any{key}, nil

	default:
		return "", nil, domain.ErrInvalidOperation
	}
}

// classifyPgError maps a failed statement to transient or permanent.
// Constraint, data and syntax/privilege errors will fail again on every replay;
// anything else (connection loss, timeouts, serialization failures, resource
// exhaustion, admin shutdown) may succeed later.
func classifyPgError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		code := pgErr.Code
		switch {
		case pgerrcode.IsIntegrityConstraintViolation(code),
			pgerrcode.IsDataException(code),
			pgerrcode.IsSyntaxErrororAccessRuleViolation(code),
			pgerrcode.IsCardinalityViolation(code):
			return Permanent(err)
		}
	}
	return Transient(err)
}

var (
	_ Gateway      = (*PostgresGateway)(nil)
	_ Pinger       = (*PostgresGateway)(nil)
	_ PeriodLister = (*PostgresGateway)(nil)
)
