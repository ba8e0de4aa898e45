package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/shaiso/Mindscope/internal/domain"
)

// schema — таблица анализов. Документ хранится целиком в JSONB,
// одна запись на артефакт.
const schema = `
CREATE TABLE IF NOT EXISTS analyses (
	id          UUID PRIMARY KEY,
	owner_id    TEXT        NOT NULL,
	artifact_id TEXT        NOT NULL,
	analysis    JSONB       NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS analyses_owner_created_idx ON analyses (owner_id, created_at DESC);
DROP INDEX IF EXISTS analyses_artifact_idx;
CREATE UNIQUE INDEX IF NOT EXISTS analyses_artifact_uidx ON analyses (artifact_id);
`

// AnalysisRepo — document store результатов терминальной стадии.
type AnalysisRepo struct {
	db DB
}

// NewAnalysisRepo создаёт новый AnalysisRepo.
func NewAnalysisRepo(db DB) *AnalysisRepo {
	return &AnalysisRepo{db: db}
}

// EnsureSchema создаёт таблицу и индексы, если их нет.
func (r *AnalysisRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Append сохраняет анализ артефакта. Повторная доставка того же события
// перезаписывает документ в существующей записи: id и created_at
// остаются прежними, история владельца не дублируется.
func (r *AnalysisRepo) Append(ctx context.Context, ownerID, artifactID string, analysis json.RawMessage) (*domain.AnalysisRecord, error) {
	if artifactID == "" {
		return nil, fmt.Errorf("%w: artifact_id is required", ErrInvalidRecord)
	}
	if !json.Valid(analysis) {
		return nil, fmt.Errorf("%w: analysis is not valid JSON", ErrInvalidRecord)
	}
	if ownerID == "" {
		ownerID = domain.AnonymousOwner
	}

	rec := &domain.AnalysisRecord{
		ID:         uuid.New(),
		OwnerID:    ownerID,
		ArtifactID: artifactID,
		Analysis:   analysis,
		CreatedAt:  time.Now().UTC(),
	}

	query := `
		INSERT INTO analyses (id, owner_id, artifact_id, analysis, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (artifact_id) DO UPDATE
		SET owner_id = EXCLUDED.owner_id, analysis = EXCLUDED.analysis
		RETURNING id, created_at
	`
	err := r.db.QueryRow(ctx, query,
		rec.ID,
		rec.OwnerID,
		rec.ArtifactID,
		[]byte(rec.Analysis),
		rec.CreatedAt,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert analysis: %w", err)
	}
	return rec, nil
}

// ListByOwner возвращает историю владельца, новые записи первыми.
func (r *AnalysisRepo) ListByOwner(ctx context.Context, ownerID string, limit int) ([]domain.AnalysisRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, owner_id, artifact_id, analysis, created_at
		FROM analyses
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	defer rows.Close()

	records := []domain.AnalysisRecord{}
	for rows.Next() {
		rec, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// GetByArtifact возвращает запись артефакта.
func (r *AnalysisRepo) GetByArtifact(ctx context.Context, artifactID string) (*domain.AnalysisRecord, error) {
	query := `
		SELECT id, owner_id, artifact_id, analysis, created_at
		FROM analyses
		WHERE artifact_id = $1
	`
	return scanAnalysis(r.db.QueryRow(ctx, query, artifactID))
}

// scanAnalysis сканирует одну строку; подходит и для pgx.Row, и для pgx.Rows.
func scanAnalysis(row pgx.Row) (*domain.AnalysisRecord, error) {
	var rec domain.AnalysisRecord
	var analysisJSON []byte

	err := row.Scan(
		&rec.ID,
		&rec.OwnerID,
		&rec.ArtifactID,
		&analysisJSON,
		&rec.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan analysis: %w", err)
	}

	rec.Analysis = json.RawMessage(analysisJSON)
	return &rec, nil
}
