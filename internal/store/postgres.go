package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/reconcile-cli/internal/db"
	"github.com/sells-group/reconcile-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

var _ Store = (*PostgresStore)(nil)

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS deals (
	id                       TEXT PRIMARY KEY,
	name                     TEXT NOT NULL,
	facility_category        TEXT NOT NULL DEFAULT 'default',
	has_unresolved_conflicts BOOLEAN NOT NULL DEFAULT false,
	created_at               TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at               TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS documents (
	deal_id     TEXT NOT NULL REFERENCES deals(id),
	id          TEXT NOT NULL,
	ingested_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (deal_id, id)
);

CREATE TABLE IF NOT EXISTS extracted_fields (
	deal_id      TEXT NOT NULL,
	document_id  TEXT NOT NULL,
	field_name   TEXT NOT NULL,
	value        JSONB,
	confidence   DOUBLE PRECISION NOT NULL DEFAULT 0,
	alternatives JSONB,
	period_end   TIMESTAMPTZ,
	extracted_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (deal_id, document_id, field_name)
);

CREATE TABLE IF NOT EXISTS issues (
	id              TEXT PRIMARY KEY,
	deal_id         TEXT NOT NULL,
	document_id     TEXT NOT NULL,
	field_name      TEXT NOT NULL,
	kind            TEXT NOT NULL,
	priority        INTEGER NOT NULL DEFAULT 0,
	reason          TEXT NOT NULL DEFAULT '',
	suggested_values JSONB,
	benchmark_range JSONB,
	status          TEXT NOT NULL DEFAULT 'pending',
	resolved_value  JSONB,
	resolved_by     TEXT NOT NULL DEFAULT '',
	rationale       TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	resolved_at     TIMESTAMPTZ,
	UNIQUE (deal_id, document_id, field_name, kind)
);

CREATE TABLE IF NOT EXISTS conflicts (
	id               TEXT PRIMARY KEY,
	deal_id          TEXT NOT NULL,
	field_name       TEXT NOT NULL,
	document1_id     TEXT NOT NULL,
	document2_id     TEXT NOT NULL,
	value1           JSONB,
	value2           JSONB,
	variance_percent DOUBLE PRECISION NOT NULL DEFAULT 0,
	severity         TEXT NOT NULL,
	suggestion       TEXT NOT NULL DEFAULT '',
	suggest_reason   TEXT NOT NULL DEFAULT '',
	resolution       TEXT NOT NULL DEFAULT 'pending',
	resolved_value   JSONB,
	resolved_by      TEXT NOT NULL DEFAULT '',
	rationale        TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	resolved_at      TIMESTAMPTZ,
	UNIQUE (deal_id, field_name, document1_id, document2_id)
);

CREATE TABLE IF NOT EXISTS reconciled_fields (
	deal_id     TEXT NOT NULL,
	field_name  TEXT NOT NULL,
	sources     JSONB NOT NULL,
	value       JSONB,
	confidence  DOUBLE PRECISION NOT NULL DEFAULT 0,
	methodology TEXT NOT NULL DEFAULT '',
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (deal_id, field_name)
);

CREATE INDEX IF NOT EXISTS idx_issues_deal_status ON issues(deal_id, status);
CREATE INDEX IF NOT EXISTS idx_conflicts_deal_resolution ON conflicts(deal_id, resolution);
CREATE INDEX IF NOT EXISTS idx_extracted_fields_deal_field ON extracted_fields(deal_id, field_name);
CREATE INDEX IF NOT EXISTS idx_documents_deal_ingested ON documents(deal_id, ingested_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Deals

func (s *PostgresStore) CreateDeal(ctx context.Context, name, facilityCategory string) (*model.Deal, error) {
	if facilityCategory == "" {
		facilityCategory = "default"
	}
	d := &model.Deal{
		ID:               uuid.New().String(),
		Name:             name,
		FacilityCategory: facilityCategory,
		CreatedAt:        time.Now().UTC(),
		UpdatedAt:        time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO deals (id, name, facility_category, has_unresolved_conflicts, created_at, updated_at)
		 VALUES ($1, $2, $3, false, $4, $5)`,
		d.ID, d.Name, d.FacilityCategory, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert deal")
	}
	return d, nil
}

func (s *PostgresStore) GetDeal(ctx context.Context, dealID string) (*model.Deal, error) {
	var d model.Deal
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, facility_category, has_unresolved_conflicts, created_at, updated_at
		 FROM deals WHERE id = $1`,
		dealID,
	).Scan(&d.ID, &d.Name, &d.FacilityCategory, &d.HasUnresolvedConflicts, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "deal %s", dealID)
		}
		return nil, eris.Wrapf(err, "postgres: get deal %s", dealID)
	}
	return &d, nil
}

func (s *PostgresStore) ListDeals(ctx context.Context, limit int) ([]model.Deal, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, facility_category, has_unresolved_conflicts, created_at, updated_at
		 FROM deals ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list deals")
	}
	defer rows.Close()

	var deals []model.Deal
	for rows.Next() {
		var d model.Deal
		if err := rows.Scan(&d.ID, &d.Name, &d.FacilityCategory, &d.HasUnresolvedConflicts, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan deal")
		}
		deals = append(deals, d)
	}
	return deals, eris.Wrap(rows.Err(), "postgres: list deals iterate")
}

// Documents and extracted fields

func (s *PostgresStore) SaveExtractedFields(ctx context.Context, dealID, documentID string, fields []model.ExtractedField) error {
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO documents (deal_id, id, ingested_at) VALUES ($1, $2, $3)
		 ON CONFLICT (deal_id, id) DO UPDATE SET ingested_at = $3`,
		dealID, documentID, now,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: upsert document %s", documentID)
	}

	// Reprocessing replaces the document's prior extraction wholesale.
	_, err = s.pool.Exec(ctx,
		`DELETE FROM extracted_fields WHERE deal_id = $1 AND document_id = $2`,
		dealID, documentID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: clear fields for %s", documentID)
	}

	rows := make([][]any, 0, len(fields))
	for _, f := range fields {
		valueJSON, err := json.Marshal(f.Value)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal value for %s", f.FieldName)
		}
		altJSON, err := json.Marshal(f.Alternatives)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal alternatives for %s", f.FieldName)
		}
		extractedAt := f.ExtractedAt
		if extractedAt.IsZero() {
			extractedAt = now
		}
		rows = append(rows, []any{
			dealID, documentID, f.FieldName, valueJSON, f.Confidence, altJSON, f.PeriodEnd, extractedAt,
		})
	}

	_, err = db.CopyFrom(ctx, s.pool, "extracted_fields",
		[]string{"deal_id", "document_id", "field_name", "value", "confidence", "alternatives", "period_end", "extracted_at"},
		rows,
	)
	return eris.Wrapf(err, "postgres: copy fields for %s", documentID)
}

func (s *PostgresStore) ListDocuments(ctx context.Context, dealID string, limit int) ([]string, error) {
	query := `SELECT id FROM documents WHERE deal_id = $1 ORDER BY ingested_at DESC`
	args := []any{dealID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list documents")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan document id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "postgres: list documents iterate")
}

func (s *PostgresStore) GetExtractedFields(ctx context.Context, dealID, documentID string) (map[string]model.ExtractedField, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT document_id, field_name, value, confidence, alternatives, period_end, extracted_at
		 FROM extracted_fields WHERE deal_id = $1 AND document_id = $2`,
		dealID, documentID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get fields for %s", documentID)
	}
	defer rows.Close()

	fields := map[string]model.ExtractedField{}
	for rows.Next() {
		f, err := scanExtractedField(rows)
		if err != nil {
			return nil, err
		}
		fields[f.FieldName] = *f
	}
	return fields, eris.Wrap(rows.Err(), "postgres: get fields iterate")
}

func (s *PostgresStore) ListFieldSources(ctx context.Context, dealID, fieldName string) ([]model.Source, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT document_id, value, confidence FROM extracted_fields
		 WHERE deal_id = $1 AND field_name = $2 ORDER BY document_id`,
		dealID, fieldName,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list sources for %s", fieldName)
	}
	defer rows.Close()

	var sources []model.Source
	for rows.Next() {
		var src model.Source
		var valueJSON []byte
		if err := rows.Scan(&src.DocumentID, &valueJSON, &src.Confidence); err != nil {
			return nil, eris.Wrap(err, "postgres: scan source")
		}
		if err := json.Unmarshal(valueJSON, &src.Value); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal source value")
		}
		sources = append(sources, src)
	}
	return sources, eris.Wrap(rows.Err(), "postgres: list sources iterate")
}

func scanExtractedField(rows pgx.Rows) (*model.ExtractedField, error) {
	var f model.ExtractedField
	var valueJSON, altJSON []byte
	if err := rows.Scan(&f.DocumentID, &f.FieldName, &valueJSON, &f.Confidence, &altJSON, &f.PeriodEnd, &f.ExtractedAt); err != nil {
		return nil, eris.Wrap(err, "postgres: scan field")
	}
	if err := json.Unmarshal(valueJSON, &f.Value); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal field value")
	}
	if len(altJSON) > 0 {
		if err := json.Unmarshal(altJSON, &f.Alternatives); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal alternatives")
		}
	}
	return &f, nil
}

// Issues

func (s *PostgresStore) CreateIssue(ctx context.Context, issue *model.Issue) (bool, error) {
	if issue.ID == "" {
		issue.ID = uuid.New().String()
	}
	if issue.Status == "" {
		issue.Status = model.IssuePending
	}
	if issue.CreatedAt.IsZero() {
		issue.CreatedAt = time.Now().UTC()
	}

	suggestedJSON, err := json.Marshal(issue.SuggestedValues)
	if err != nil {
		return false, eris.Wrap(err, "postgres: marshal suggested values")
	}
	var rangeJSON []byte
	if issue.BenchmarkRange != nil {
		rangeJSON, err = json.Marshal(issue.BenchmarkRange)
		if err != nil {
			return false, eris.Wrap(err, "postgres: marshal benchmark range")
		}
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO issues (id, deal_id, document_id, field_name, kind, priority, reason, suggested_values, benchmark_range, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (deal_id, document_id, field_name, kind) DO NOTHING`,
		issue.ID, issue.DealID, issue.DocumentID, issue.FieldName, string(issue.Kind),
		issue.Priority, issue.Reason, suggestedJSON, rangeJSON, string(issue.Status), issue.CreatedAt,
	)
	if err != nil {
		return false, eris.Wrap(err, "postgres: insert issue")
	}
	return tag.RowsAffected() > 0, nil
}

const issueColumns = `id, deal_id, document_id, field_name, kind, priority, reason,
	suggested_values, benchmark_range, status, resolved_value, resolved_by, rationale, created_at, resolved_at`

func (s *PostgresStore) GetIssue(ctx context.Context, issueID string) (*model.Issue, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+issueColumns+` FROM issues WHERE id = $1`, issueID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get issue %s", issueID)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, eris.Wrapf(err, "postgres: get issue %s", issueID)
		}
		return nil, eris.Wrapf(ErrNotFound, "issue %s", issueID)
	}
	return scanIssue(rows)
}

func (s *PostgresStore) ListIssues(ctx context.Context, dealID string, pendingOnly bool) ([]model.Issue, error) {
	query := `SELECT ` + issueColumns + ` FROM issues WHERE deal_id = $1`
	if pendingOnly {
		query += ` AND status = 'pending'`
	}
	query += ` ORDER BY priority DESC, created_at ASC`

	rows, err := s.pool.Query(ctx, query, dealID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list issues")
	}
	defer rows.Close()

	var issues []model.Issue
	for rows.Next() {
		iss, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		issues = append(issues, *iss)
	}
	return issues, eris.Wrap(rows.Err(), "postgres: list issues iterate")
}

func (s *PostgresStore) ResolveIssue(ctx context.Context, issueID string, req ResolveRequest) (*model.Issue, error) {
	iss, err := s.GetIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}
	if err := applyIssueResolution(iss, req, time.Now().UTC()); err != nil {
		return nil, err
	}

	var valueJSON []byte
	if iss.ResolvedValue != nil {
		valueJSON, err = json.Marshal(iss.ResolvedValue)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: marshal resolved value")
		}
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE issues SET status = $1, resolved_value = $2, resolved_by = $3, rationale = $4, resolved_at = $5
		 WHERE id = $6 AND status = 'pending'`,
		string(iss.Status), valueJSON, iss.ResolvedBy, iss.Rationale, iss.ResolvedAt, issueID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: resolve issue %s", issueID)
	}
	if tag.RowsAffected() == 0 {
		return nil, eris.Wrapf(ErrAlreadyResolved, "issue %s", issueID)
	}
	return iss, nil
}

func scanIssue(rows pgx.Rows) (*model.Issue, error) {
	var iss model.Issue
	var kind, status string
	var suggestedJSON, rangeJSON, resolvedJSON []byte

	if err := rows.Scan(&iss.ID, &iss.DealID, &iss.DocumentID, &iss.FieldName, &kind, &iss.Priority,
		&iss.Reason, &suggestedJSON, &rangeJSON, &status, &resolvedJSON,
		&iss.ResolvedBy, &iss.Rationale, &iss.CreatedAt, &iss.ResolvedAt); err != nil {
		return nil, eris.Wrap(err, "postgres: scan issue")
	}
	iss.Kind = model.IssueKind(kind)
	iss.Status = model.IssueStatus(status)
	if len(suggestedJSON) > 0 {
		if err := json.Unmarshal(suggestedJSON, &iss.SuggestedValues); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal suggested values")
		}
	}
	if len(rangeJSON) > 0 {
		iss.BenchmarkRange = &model.BenchmarkRange{}
		if err := json.Unmarshal(rangeJSON, iss.BenchmarkRange); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal benchmark range")
		}
	}
	if len(resolvedJSON) > 0 {
		iss.ResolvedValue = &model.FieldValue{}
		if err := json.Unmarshal(resolvedJSON, iss.ResolvedValue); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal resolved value")
		}
	}
	return &iss, nil
}

// Conflicts

func (s *PostgresStore) CreateConflict(ctx context.Context, c *model.Conflict) (bool, error) {
	canonicalizeConflict(c)
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Resolution == "" {
		c.Resolution = model.ResolutionPending
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	value1JSON, err := json.Marshal(c.Value1)
	if err != nil {
		return false, eris.Wrap(err, "postgres: marshal value1")
	}
	value2JSON, err := json.Marshal(c.Value2)
	if err != nil {
		return false, eris.Wrap(err, "postgres: marshal value2")
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO conflicts (id, deal_id, field_name, document1_id, document2_id, value1, value2,
		   variance_percent, severity, suggestion, suggest_reason, resolution, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (deal_id, field_name, document1_id, document2_id) DO NOTHING`,
		c.ID, c.DealID, c.FieldName, c.Document1ID, c.Document2ID, value1JSON, value2JSON,
		c.VariancePercent, string(c.Severity), string(c.Suggestion), c.SuggestReason,
		string(c.Resolution), c.CreatedAt,
	)
	if err != nil {
		return false, eris.Wrap(err, "postgres: insert conflict")
	}
	return tag.RowsAffected() > 0, nil
}

const conflictColumns = `id, deal_id, field_name, document1_id, document2_id, value1, value2,
	variance_percent, severity, suggestion, suggest_reason, resolution, resolved_value,
	resolved_by, rationale, created_at, resolved_at`

func (s *PostgresStore) GetConflict(ctx context.Context, conflictID string) (*model.Conflict, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+conflictColumns+` FROM conflicts WHERE id = $1`, conflictID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get conflict %s", conflictID)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, eris.Wrapf(err, "postgres: get conflict %s", conflictID)
		}
		return nil, eris.Wrapf(ErrNotFound, "conflict %s", conflictID)
	}
	return scanConflict(rows)
}

func (s *PostgresStore) ListConflicts(ctx context.Context, dealID string, pendingOnly bool) ([]model.Conflict, error) {
	query := `SELECT ` + conflictColumns + ` FROM conflicts WHERE deal_id = $1`
	if pendingOnly {
		query += ` AND resolution = 'pending'`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, query, dealID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list conflicts")
	}
	defer rows.Close()

	var conflicts []model.Conflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, *c)
	}
	return conflicts, eris.Wrap(rows.Err(), "postgres: list conflicts iterate")
}

func (s *PostgresStore) ResolveConflict(ctx context.Context, conflictID string, req ResolveRequest) (*model.Conflict, error) {
	c, err := s.GetConflict(ctx, conflictID)
	if err != nil {
		return nil, err
	}
	if err := applyConflictResolution(c, req, time.Now().UTC()); err != nil {
		return nil, err
	}

	var valueJSON []byte
	if c.ResolvedValue != nil {
		valueJSON, err = json.Marshal(c.ResolvedValue)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: marshal resolved value")
		}
	}

	// The pending guard makes resolution first-writer-wins under races.
	tag, err := s.pool.Exec(ctx,
		`UPDATE conflicts SET resolution = $1, resolved_value = $2, resolved_by = $3, rationale = $4, resolved_at = $5
		 WHERE id = $6 AND resolution = 'pending'`,
		string(c.Resolution), valueJSON, c.ResolvedBy, c.Rationale, c.ResolvedAt, conflictID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: resolve conflict %s", conflictID)
	}
	if tag.RowsAffected() == 0 {
		return nil, eris.Wrapf(ErrAlreadyResolved, "conflict %s", conflictID)
	}
	return c, nil
}

func scanConflict(rows pgx.Rows) (*model.Conflict, error) {
	var c model.Conflict
	var severity, suggestion, resolution string
	var value1JSON, value2JSON, resolvedJSON []byte

	if err := rows.Scan(&c.ID, &c.DealID, &c.FieldName, &c.Document1ID, &c.Document2ID,
		&value1JSON, &value2JSON, &c.VariancePercent, &severity, &suggestion, &c.SuggestReason,
		&resolution, &resolvedJSON, &c.ResolvedBy, &c.Rationale, &c.CreatedAt, &c.ResolvedAt); err != nil {
		return nil, eris.Wrap(err, "postgres: scan conflict")
	}
	c.Severity = model.ConflictSeverity(severity)
	c.Suggestion = model.ConflictResolution(suggestion)
	c.Resolution = model.ConflictResolution(resolution)
	if err := json.Unmarshal(value1JSON, &c.Value1); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal value1")
	}
	if err := json.Unmarshal(value2JSON, &c.Value2); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal value2")
	}
	if len(resolvedJSON) > 0 {
		c.ResolvedValue = &model.FieldValue{}
		if err := json.Unmarshal(resolvedJSON, c.ResolvedValue); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal resolved value")
		}
	}
	return &c, nil
}

// Reconciled snapshots

func (s *PostgresStore) SaveReconciledFields(ctx context.Context, fields []model.ReconciledField) error {
	if len(fields) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(fields))
	now := time.Now().UTC()
	for _, rf := range fields {
		sourcesJSON, err := json.Marshal(rf.Sources)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal sources for %s", rf.FieldName)
		}
		valueJSON, err := json.Marshal(rf.Value)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal value for %s", rf.FieldName)
		}
		updatedAt := rf.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = now
		}
		rows = append(rows, []any{
			rf.DealID, rf.FieldName, sourcesJSON, valueJSON, rf.Confidence, rf.Methodology, updatedAt,
		})
	}

	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "reconciled_fields",
		Columns:      []string{"deal_id", "field_name", "sources", "value", "confidence", "methodology", "updated_at"},
		ConflictKeys: []string{"deal_id", "field_name"},
	}, rows)
	return eris.Wrap(err, "postgres: upsert reconciled fields")
}

func (s *PostgresStore) ListReconciledFields(ctx context.Context, dealID string) ([]model.ReconciledField, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT deal_id, field_name, sources, value, confidence, methodology, updated_at
		 FROM reconciled_fields WHERE deal_id = $1 ORDER BY field_name`,
		dealID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list reconciled fields")
	}
	defer rows.Close()

	var fields []model.ReconciledField
	for rows.Next() {
		var rf model.ReconciledField
		var sourcesJSON, valueJSON []byte
		if err := rows.Scan(&rf.DealID, &rf.FieldName, &sourcesJSON, &valueJSON, &rf.Confidence, &rf.Methodology, &rf.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan reconciled field")
		}
		if err := json.Unmarshal(sourcesJSON, &rf.Sources); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal sources")
		}
		if err := json.Unmarshal(valueJSON, &rf.Value); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal reconciled value")
		}
		fields = append(fields, rf)
	}
	return fields, eris.Wrap(rows.Err(), "postgres: list reconciled fields iterate")
}

// Flag

func (s *PostgresStore) RecomputeUnresolvedFlag(ctx context.Context, dealID string) (bool, error) {
	var flag bool
	err := s.pool.QueryRow(ctx,
		`UPDATE deals SET has_unresolved_conflicts = (
		     EXISTS (SELECT 1 FROM issues WHERE deal_id = $1 AND status = 'pending')
		  OR EXISTS (SELECT 1 FROM conflicts WHERE deal_id = $1 AND resolution = 'pending')
		 ), updated_at = now()
		 WHERE id = $1
		 RETURNING has_unresolved_conflicts`,
		dealID,
	).Scan(&flag)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, eris.Wrapf(ErrNotFound, "deal %s", dealID)
		}
		return false, eris.Wrapf(err, "postgres: recompute flag for %s", dealID)
	}
	return flag, nil
}
