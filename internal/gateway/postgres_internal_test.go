package gateway

import (
	"errors"
	"reflect"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ricirt/plinko-sync/internal/domain"
)

func TestBuildStatement(t *testing.T) {
	tests := []struct {
		name string
		item domain.QueueItem
		sql  string
		args []any
	}{
		{
			name: "insert with key",
			item: domain.QueueItem{Op: domain.OpInsert, Table: domain.TablePeriods,
				Payload: domain.Payload{"id": json.Number("7"), "nickname": "p7", "points": json.Number("0"), "chips": json.Number("3")}},
			sql:  `INSERT INTO "periods" ("chips", "id", "nickname", "points") VALUES ($1, $2, $3, $4) ON CONFLICT ("id") DO NOTHING`,
			args: []any{int64(3), int64(7), "p7", int64(0)},
		},
		{
			name: "insert without key",
			item: domain.QueueItem{Op: domain.OpInsert, Table: domain.TablePeriods,
				Payload: domain.Payload{"nickname": "auto"}},
			sql:  `INSERT INTO "periods" ("nickname") VALUES ($1)`,
			args: []any{"auto"},
		},
		{
			name: "update",
			item: domain.QueueItem{Op: domain.OpUpdate, Table: domain.TablePeriods,
				Payload: domain.Payload{"id": json.Number("1"), "points": json.Number("10")}},
			sql:  `UPDATE "periods" SET "points" = $1 WHERE "id" = $2`,
			args: []any{int64(10), int64(1)},
		},
		{
			name: "delete",
			item: domain.QueueItem{Op: domain.OpDelete, Table: domain.TablePeriods,
				Payload: domain.Payload{"id": 4}},
			sql:  `DELETE FROM "periods" WHERE "id" = $1`,
			args: []any{4},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sql, args, err := buildStatement(tc.item)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if sql != tc.sql {
				t.Fatalf("sql mismatch:\nwant %s\ngot  %s", tc.sql, sql)
			}
			if !reflect.DeepEqual(args, tc.args) {
				t.Fatalf("args mismatch: want %#v, got %#v", tc.args, args)
			}
		})
	}
}

func TestBuildStatement_Rejects(t *testing.T) {
	tests := []struct {
		name string
		item domain.QueueItem
		want error
	}{
		{"unknown table", domain.QueueItem{Op: domain.OpDelete, Table: "scores", Payload: domain.Payload{"id": 1}}, domain.ErrUnknownTable},
		{"unknown column", domain.QueueItem{Op: domain.OpUpdate, Table: domain.TablePeriods, Payload: domain.Payload{"id": 1, "bogus": 1}}, domain.ErrUnknownColumn},
		{"delete without key", domain.QueueItem{Op: domain.OpDelete, Table: domain.TablePeriods, Payload: domain.Payload{"points": 1}}, domain.ErrMissingKey},
		{"bad op", domain.QueueItem{Op: "merge", Table: domain.TablePeriods, Payload: domain.Payload{"id": 1}}, domain.ErrInvalidOperation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := buildStatement(tc.item); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	t.Run("update with only the key", func(t *testing.T) {
		item := domain.QueueItem{Op: domain.OpUpdate, Table: domain.TablePeriods, Payload: domain.Payload{"id": 1}}
		if _, _, err := buildStatement(item); err == nil {
			t.Fatal("expected error for update without columns")
		}
	})
}

func TestClassifyPgError(t *testing.T) {
	tests := []struct {
		code      string
		permanent bool
	}{
		{pgerrcode.UniqueViolation, true},
		{pgerrcode.NotNullViolation, true},
		{pgerrcode.NumericValueOutOfRange, true},
		{pgerrcode.UndefinedColumn, true},
		{pgerrcode.InsufficientPrivilege, true},
		{pgerrcode.SerializationFailure, false},
		{pgerrcode.DeadlockDetected, false},
		{pgerrcode.AdminShutdown, false},
		{pgerrcode.TooManyConnections, false},
		{pgerrcode.ConnectionFailure, false},
	}
	for _, tc := range tests {
		t.Run(tc.code, func(t *testing.T) {
			err := classifyPgError(&pgconn.PgError{Code: tc.code})
			if IsPermanent(err) != tc.permanent {
				t.Fatalf("code %s: permanent = %v, want %v", tc.code, IsPermanent(err), tc.permanent)
			}
		})
	}

	if !IsTransient(classifyPgError(errors.New("dial tcp: connection refused"))) {
		t.Fatal("network errors must be transient")
	}
}

func TestNormalize(t *testing.T) {
	if got := normalize(json.Number("12")); got != int64(12) {
		t.Fatalf("expected int64 12, got %#v", got)
	}
	if got := normalize(json.Number("1.5")); got != 1.5 {
		t.Fatalf("expected 1.5, got %#v", got)
	}
	if got := normalize("x"); got != "x" {
		t.Fatalf("expected passthrough, got %#v", got)
	}
}
