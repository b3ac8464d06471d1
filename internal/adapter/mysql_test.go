package adapter

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"

	"github.com/pagebase/core/internal/model"
)

func newMockMySQLAdapter(t *testing.T) (*MySQLAdapter, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &MySQLAdapter{db: db, dialect: goqu.Dialect("mysql")}, mock
}

func TestMySQLAdapterReadRecordsAppliesWhereAndColumns(t *testing.T) {
	a, mock := newMockMySQLAdapter(t)

	rows := sqlmock.NewRows([]string{"id", "name"}).AddRow("1", "Acme")
	mock.ExpectQuery(`SELECT .*id.*name.* FROM .widgets. WHERE .*status.* = \?`).
		WillReturnRows(rows)

	recs, err := a.ReadRecords(context.Background(), "widgets", ReadOpts{
		Columns: []string{"id", "name"},
		Where:   []Filter{{Column: "status", Op: OpEq, Value: "active"}},
	})
	if err != nil {
		t.Fatalf("ReadRecords: %v", err)
	}
	if len(recs) != 1 || recs[0]["name"] != "Acme" {
		t.Fatalf("unexpected records: %#v", recs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMySQLAdapterReadRecordByKeyLimitsToOne(t *testing.T) {
	a, mock := newMockMySQLAdapter(t)

	rows := sqlmock.NewRows([]string{"id"}).AddRow("42")
	mock.ExpectQuery(`WHERE .*id.* = \?.*LIMIT`).
		WillReturnRows(rows)

	rec, found, err := a.ReadRecordByKey(context.Background(), "widgets", "id", "42")
	if err != nil {
		t.Fatalf("ReadRecordByKey: %v", err)
	}
	if !found || rec["id"] != "42" {
		t.Fatalf("expected to find record 42, got %#v (found=%v)", rec, found)
	}
}

func TestMySQLAdapterReadRecordByKeyNotFound(t *testing.T) {
	a, mock := newMockMySQLAdapter(t)

	mock.ExpectQuery(`WHERE .*id.* = \?.*LIMIT`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, found, err := a.ReadRecordByKey(context.Background(), "widgets", "id", "missing")
	if err != nil {
		t.Fatalf("ReadRecordByKey: %v", err)
	}
	if found {
		t.Fatalf("expected no record to be found")
	}
}

func TestMySQLAdapterUpsertRecordUsesOnDuplicateKey(t *testing.T) {
	a, mock := newMockMySQLAdapter(t)

	mock.ExpectExec("INSERT INTO .widgets.*ON DUPLICATE KEY UPDATE").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`WHERE .*id.* = \?.*LIMIT`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow("7", "Widget"))

	rec, err := a.UpsertRecord(context.Background(), "widgets", model.Record{"id": "7", "name": "Widget"}, "id")
	if err != nil {
		t.Fatalf("UpsertRecord: %v", err)
	}
	if rec["name"] != "Widget" {
		t.Fatalf("unexpected record: %#v", rec)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMySQLAdapterDeleteRecordReportsRowsAffected(t *testing.T) {
	a, mock := newMockMySQLAdapter(t)

	mock.ExpectExec(`DELETE FROM .widgets. WHERE .*id.* = \?`).
		WithArgs("7").
		WillReturnResult(sqlmock.NewResult(0, 1))

	deleted, err := a.DeleteRecord(context.Background(), "widgets", "id", "7")
	if err != nil {
		t.Fatalf("DeleteRecord: %v", err)
	}
	if !deleted {
		t.Fatalf("expected DeleteRecord to report a deletion")
	}
}

func TestMySQLAdapterDeleteRecordMissingRowReturnsFalse(t *testing.T) {
	a, mock := newMockMySQLAdapter(t)

	mock.ExpectExec(`DELETE FROM .widgets. WHERE .*id.* = \?`).
		WithArgs("404").
		WillReturnResult(sqlmock.NewResult(0, 0))

	deleted, err := a.DeleteRecord(context.Background(), "widgets", "id", "404")
	if err != nil {
		t.Fatalf("DeleteRecord: %v", err)
	}
	if deleted {
		t.Fatalf("expected DeleteRecord to report no deletion")
	}
}

func TestMySQLAdapterCountRecordsAppliesWhere(t *testing.T) {
	a, mock := newMockMySQLAdapter(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM .widgets. WHERE .*status.* = \?`).
		WithArgs("active").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	n, err := a.CountRecords(context.Background(), "widgets", []Filter{{Column: "status", Op: OpEq, Value: "active"}})
	if err != nil {
		t.Fatalf("CountRecords: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected count 3, got %d", n)
	}
}

func TestMySQLAdapterPostmetaJoinRewritesWordPressMetaFilter(t *testing.T) {
	a := &MySQLAdapter{isWordPress: true, prefix: "wp_", dialect: goqu.Dialect("mysql")}
	ds := a.dialect.From(goqu.T("wp_posts")).Select(goqu.Star())

	ds, rest := a.postmetaJoins(ds, "wp_posts", []Filter{{Column: "meta:featured.meta_value", Op: OpEq, Value: "1"}})
	if len(rest) != 1 {
		t.Fatalf("expected one rewritten filter, got %d", len(rest))
	}
	if rest[0].Column == "meta:featured.meta_value" {
		t.Fatalf("expected the meta: filter to be rewritten to a joined alias column, got %q", rest[0].Column)
	}

	sqlStr, _, err := ds.ToSQL()
	if err != nil {
		t.Fatalf("ToSQL: %v", err)
	}
	if !regexp.MustCompile("LEFT JOIN .wp_postmeta. AS .pm_featured.").MatchString(sqlStr) {
		t.Fatalf("expected a left join against wp_postmeta aliased by meta key, got %q", sqlStr)
	}
}

func TestMySQLAdapterPostmetaJoinSkippedForNonWordPress(t *testing.T) {
	a := &MySQLAdapter{isWordPress: false, dialect: goqu.Dialect("mysql")}
	ds := a.dialect.From(goqu.T("widgets")).Select(goqu.Star())

	_, rest := a.postmetaJoins(ds, "widgets", []Filter{{Column: "meta:featured.meta_value", Op: OpEq, Value: "1"}})
	if len(rest) != 1 || rest[0].Column != "meta:featured.meta_value" {
		t.Fatalf("expected the filter to pass through unchanged for a non-WordPress adapter, got %#v", rest)
	}
}
