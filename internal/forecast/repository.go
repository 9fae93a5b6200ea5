package forecast

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wonny/fxcast/internal/contracts"
)

// Repository 예측 로그 저장소 (append-only)
// ⭐ SSOT: PredictionRecord/ActualRecord 영속화는 이 인터페이스로만
type Repository interface {
	// AppendPredictions inserts records keyed by (horizon, issue_date).
	// Existing keys are left untouched; returns the number inserted.
	AppendPredictions(ctx context.Context, recs []contracts.PredictionRecord) (int, error)
	// RecordActuals stores realized values keyed by target date (first write wins).
	RecordActuals(ctx context.Context, acts []contracts.ActualRecord) (int, error)
	ListPredictions(ctx context.Context) ([]contracts.PredictionRecord, error)
	ListPaired(ctx context.Context) ([]contracts.PairedRecord, error)
	// Prune applies the retention policy: removes records issued before cutoff.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// DBTX pgxpool.Pool, pgx.Conn, pgx.Tx 및 pgxmock 공통 인터페이스
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Schema DDL for the prediction log
const Schema = `
CREATE SCHEMA IF NOT EXISTS fxcast;
CREATE TABLE IF NOT EXISTS fxcast.predictions (
	horizon     INTEGER          NOT NULL,
	issue_date  DATE             NOT NULL,
	target_date DATE             NOT NULL,
	issue_value DOUBLE PRECISION NOT NULL,
	predicted   DOUBLE PRECISION NOT NULL,
	ci80_low    DOUBLE PRECISION NOT NULL,
	ci80_high   DOUBLE PRECISION NOT NULL,
	ci95_low    DOUBLE PRECISION NOT NULL,
	ci95_high   DOUBLE PRECISION NOT NULL,
	run_id      TEXT             NOT NULL DEFAULT '',
	logged_at   TIMESTAMPTZ      NOT NULL,
	PRIMARY KEY (horizon, issue_date)
);
CREATE TABLE IF NOT EXISTS fxcast.actuals (
	target_date DATE             PRIMARY KEY,
	value       DOUBLE PRECISION NOT NULL,
	observed_at TIMESTAMPTZ      NOT NULL
);
CREATE INDEX IF NOT EXISTS predictions_target_date_idx ON fxcast.predictions (target_date);
`

// PostgresRepository Postgres 기반 예측 로그
type PostgresRepository struct {
	db DBTX
}

// NewPostgresRepository 새 저장소 생성
func NewPostgresRepository(db DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Migrate creates the tables if needed
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate prediction log: %w", err)
	}
	return nil
}

const insertPrediction = `
	INSERT INTO fxcast.predictions
		(horizon, issue_date, target_date, issue_value, predicted,
		 ci80_low, ci80_high, ci95_low, ci95_high, run_id, logged_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (horizon, issue_date) DO NOTHING`

// AppendPredictions 예측 기록 추가
func (r *PostgresRepository) AppendPredictions(ctx context.Context, recs []contracts.PredictionRecord) (int, error) {
	inserted := 0
	for _, p := range recs {
		tag, err := r.db.Exec(ctx, insertPrediction,
			int(p.Horizon), contracts.Day(p.IssueDate), contracts.Day(p.TargetDate),
			p.IssueValue, p.Predicted,
			p.CI80Low, p.CI80High, p.CI95Low, p.CI95High,
			p.RunID, p.LoggedAt,
		)
		if err != nil {
			return inserted, fmt.Errorf("insert prediction %s/%s: %w", p.Horizon, p.IssueDate.Format("2006-01-02"), err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

const insertActual = `
	INSERT INTO fxcast.actuals (target_date, value, observed_at)
	VALUES ($1, $2, $3)
	ON CONFLICT (target_date) DO NOTHING`

// RecordActuals 실현값 기록
func (r *PostgresRepository) RecordActuals(ctx context.Context, acts []contracts.ActualRecord) (int, error) {
	inserted := 0
	for _, a := range acts {
		tag, err := r.db.Exec(ctx, insertActual, contracts.Day(a.TargetDate), a.Value, a.ObservedAt)
		if err != nil {
			return inserted, fmt.Errorf("insert actual %s: %w", a.TargetDate.Format("2006-01-02"), err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

const predictionColumns = `p.horizon, p.issue_date, p.target_date, p.issue_value, p.predicted,
		p.ci80_low, p.ci80_high, p.ci95_low, p.ci95_high, p.run_id, p.logged_at`

// ListPredictions 전체 예측 기록 조회
func (r *PostgresRepository) ListPredictions(ctx context.Context) ([]contracts.PredictionRecord, error) {
	query := `
		SELECT ` + predictionColumns + `
		FROM fxcast.predictions p
		ORDER BY p.horizon, p.issue_date`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list predictions: %w", err)
	}
	defer rows.Close()

	var out []contracts.PredictionRecord
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListPaired 실현값이 있는 예측만 조회
func (r *PostgresRepository) ListPaired(ctx context.Context) ([]contracts.PairedRecord, error) {
	query := `
		SELECT ` + predictionColumns + `, a.value
		FROM fxcast.predictions p
		JOIN fxcast.actuals a ON a.target_date = p.target_date
		ORDER BY p.horizon, p.issue_date`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list paired: %w", err)
	}
	defer rows.Close()

	var out []contracts.PairedRecord
	for rows.Next() {
		var pr contracts.PairedRecord
		var h int
		if err := rows.Scan(
			&h, &pr.IssueDate, &pr.TargetDate, &pr.IssueValue, &pr.Predicted,
			&pr.CI80Low, &pr.CI80High, &pr.CI95Low, &pr.CI95High, &pr.RunID, &pr.LoggedAt,
			&pr.Actual,
		); err != nil {
			return nil, fmt.Errorf("scan paired: %w", err)
		}
		pr.Horizon = contracts.Horizon(h)
		out = append(out, pr)
	}
	return out, rows.Err()
}

// Prune 보존 기간이 지난 기록 삭제
func (r *PostgresRepository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	c := contracts.Day(cutoff)
	tag, err := r.db.Exec(ctx, `DELETE FROM fxcast.predictions WHERE issue_date < $1`, c)
	if err != nil {
		return 0, fmt.Errorf("prune predictions: %w", err)
	}
	if _, err := r.db.Exec(ctx, `
		DELETE FROM fxcast.actuals a
		WHERE a.target_date < $1
		  AND NOT EXISTS (SELECT 1 FROM fxcast.predictions p WHERE p.target_date = a.target_date)`, c); err != nil {
		return tag.RowsAffected(), fmt.Errorf("prune actuals: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanPrediction(rows pgx.Rows) (contracts.PredictionRecord, error) {
	var p contracts.PredictionRecord
	var h int
	if err := rows.Scan(
		&h, &p.IssueDate, &p.TargetDate, &p.IssueValue, &p.Predicted,
		&p.CI80Low, &p.CI80High, &p.CI95Low, &p.CI95High, &p.RunID, &p.LoggedAt,
	); err != nil {
		return p, fmt.Errorf("scan prediction: %w", err)
	}
	p.Horizon = contracts.Horizon(h)
	return p, nil
}
