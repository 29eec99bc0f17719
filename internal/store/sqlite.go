package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/reconcile-cli/internal/model"
)

// SQLiteStore implements Store on a local SQLite file. It exists so the CLI
// can run reconciliation without a Postgres instance.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens (creating if needed) a SQLite database at path.
func NewSQLite(path string) (*SQLiteStore, error) {
	database, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: open %s", path)
	}

	// Single writer; WAL keeps readers unblocked during ingest.
	database.SetMaxOpenConns(1)
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := database.Exec(p); err != nil {
			database.Close()
			return nil, eris.Wrapf(err, "sqlite: %s", p)
		}
	}
	return &SQLiteStore{db: database}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS deals (
	id                       TEXT PRIMARY KEY,
	name                     TEXT NOT NULL,
	facility_category        TEXT NOT NULL DEFAULT 'default',
	has_unresolved_conflicts INTEGER NOT NULL DEFAULT 0,
	created_at               DATETIME NOT NULL,
	updated_at               DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
	deal_id     TEXT NOT NULL REFERENCES deals(id),
	id          TEXT NOT NULL,
	ingested_at DATETIME NOT NULL,
	PRIMARY KEY (deal_id, id)
);

CREATE TABLE IF NOT EXISTS extracted_fields (
	deal_id      TEXT NOT NULL,
	document_id  TEXT NOT NULL,
	field_name   TEXT NOT NULL,
	value        TEXT,
	confidence   REAL NOT NULL DEFAULT 0,
	alternatives TEXT,
	period_end   DATETIME,
	extracted_at DATETIME NOT NULL,
	PRIMARY KEY (deal_id, document_id, field_name)
);

CREATE TABLE IF NOT EXISTS issues (
	id               TEXT PRIMARY KEY,
	deal_id          TEXT NOT NULL,
	document_id      TEXT NOT NULL,
	field_name       TEXT NOT NULL,
	kind             TEXT NOT NULL,
	priority         INTEGER NOT NULL DEFAULT 0,
	reason           TEXT NOT NULL DEFAULT '',
	suggested_values TEXT,
	benchmark_range  TEXT,
	status           TEXT NOT NULL DEFAULT 'pending',
	resolved_value   TEXT,
	resolved_by      TEXT NOT NULL DEFAULT '',
	rationale        TEXT NOT NULL DEFAULT '',
	created_at       DATETIME NOT NULL,
	resolved_at      DATETIME,
	UNIQUE (deal_id, document_id, field_name, kind)
);

CREATE TABLE IF NOT EXISTS conflicts (
	id               TEXT PRIMARY KEY,
	deal_id          TEXT NOT NULL,
	field_name       TEXT NOT NULL,
	document1_id     TEXT NOT NULL,
	document2_id     TEXT NOT NULL,
	value1           TEXT,
	value2           TEXT,
	variance_percent REAL NOT NULL DEFAULT 0,
	severity         TEXT NOT NULL,
	suggestion       TEXT NOT NULL DEFAULT '',
	suggest_reason   TEXT NOT NULL DEFAULT '',
	resolution       TEXT NOT NULL DEFAULT 'pending',
	resolved_value   TEXT,
	resolved_by      TEXT NOT NULL DEFAULT '',
	rationale        TEXT NOT NULL DEFAULT '',
	created_at       DATETIME NOT NULL,
	resolved_at      DATETIME,
	UNIQUE (deal_id, field_name, document1_id, document2_id)
);

CREATE TABLE IF NOT EXISTS reconciled_fields (
	deal_id     TEXT NOT NULL,
	field_name  TEXT NOT NULL,
	sources     TEXT NOT NULL,
	value       TEXT,
	confidence  REAL NOT NULL DEFAULT 0,
	methodology TEXT NOT NULL DEFAULT '',
	updated_at  DATETIME NOT NULL,
	PRIMARY KEY (deal_id, field_name)
);

CREATE INDEX IF NOT EXISTS idx_issues_deal_status ON issues(deal_id, status);
CREATE INDEX IF NOT EXISTS idx_conflicts_deal_resolution ON conflicts(deal_id, resolution);
CREATE INDEX IF NOT EXISTS idx_extracted_fields_deal_field ON extracted_fields(deal_id, field_name);
CREATE INDEX IF NOT EXISTS idx_documents_deal_ingested ON documents(deal_id, ingested_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return eris.Wrap(s.db.Close(), "sqlite: close")
}

// Deals

func (s *SQLiteStore) CreateDeal(ctx context.Context, name, facilityCategory string) (*model.Deal, error) {
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
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO deals (id, name, facility_category, has_unresolved_conflicts, created_at, updated_at)
		 VALUES (?, ?, ?, 0, ?, ?)`,
		d.ID, d.Name, d.FacilityCategory, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert deal")
	}
	return d, nil
}

func (s *SQLiteStore) GetDeal(ctx context.Context, dealID string) (*model.Deal, error) {
	var d model.Deal
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, facility_category, has_unresolved_conflicts, created_at, updated_at
		 FROM deals WHERE id = ?`,
		dealID,
	).Scan(&d.ID, &d.Name, &d.FacilityCategory, &d.HasUnresolvedConflicts, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "deal %s", dealID)
		}
		return nil, eris.Wrapf(err, "sqlite: get deal %s", dealID)
	}
	return &d, nil
}

func (s *SQLiteStore) ListDeals(ctx context.Context, limit int) ([]model.Deal, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, facility_category, has_unresolved_conflicts, created_at, updated_at
		 FROM deals ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list deals")
	}
	defer rows.Close()

	var deals []model.Deal
	for rows.Next() {
		var d model.Deal
		if err := rows.Scan(&d.ID, &d.Name, &d.FacilityCategory, &d.HasUnresolvedConflicts, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan deal")
		}
		deals = append(deals, d)
	}
	return deals, eris.Wrap(rows.Err(), "sqlite: list deals iterate")
}

// Documents and extracted fields

func (s *SQLiteStore) SaveExtractedFields(ctx context.Context, dealID, documentID string, fields []model.ExtractedField) error {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (deal_id, id, ingested_at) VALUES (?, ?, ?)
		 ON CONFLICT (deal_id, id) DO UPDATE SET ingested_at = excluded.ingested_at`,
		dealID, documentID, now,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: upsert document %s", documentID)
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM extracted_fields WHERE deal_id = ? AND document_id = ?`,
		dealID, documentID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: clear fields for %s", documentID)
	}

	for _, f := range fields {
		valueJSON, err := json.Marshal(f.Value)
		if err != nil {
			return eris.Wrapf(err, "sqlite: marshal value for %s", f.FieldName)
		}
		altJSON, err := json.Marshal(f.Alternatives)
		if err != nil {
			return eris.Wrapf(err, "sqlite: marshal alternatives for %s", f.FieldName)
		}
		extractedAt := f.ExtractedAt
		if extractedAt.IsZero() {
			extractedAt = now
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO extracted_fields (deal_id, document_id, field_name, value, confidence, alternatives, period_end, extracted_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			dealID, documentID, f.FieldName, string(valueJSON), f.Confidence, string(altJSON), f.PeriodEnd, extractedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert field %s", f.FieldName)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit fields")
}

func (s *SQLiteStore) ListDocuments(ctx context.Context, dealID string, limit int) ([]string, error) {
	query := `SELECT id FROM documents WHERE deal_id = ? ORDER BY ingested_at DESC`
	args := []any{dealID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list documents")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan document id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: list documents iterate")
}

func (s *SQLiteStore) GetExtractedFields(ctx context.Context, dealID, documentID string) (map[string]model.ExtractedField, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT document_id, field_name, value, confidence, alternatives, period_end, extracted_at
		 FROM extracted_fields WHERE deal_id = ? AND document_id = ?`,
		dealID, documentID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get fields for %s", documentID)
	}
	defer rows.Close()

	fields := map[string]model.ExtractedField{}
	for rows.Next() {
		var f model.ExtractedField
		var valueJSON string
		var altJSON sql.NullString
		if err := rows.Scan(&f.DocumentID, &f.FieldName, &valueJSON, &f.Confidence, &altJSON, &f.PeriodEnd, &f.ExtractedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan field")
		}
		if err := json.Unmarshal([]byte(valueJSON), &f.Value); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal field value")
		}
		if altJSON.Valid && altJSON.String != "" {
			if err := json.Unmarshal([]byte(altJSON.String), &f.Alternatives); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal alternatives")
			}
		}
		fields[f.FieldName] = f
	}
	return fields, eris.Wrap(rows.Err(), "sqlite: get fields iterate")
}

func (s *SQLiteStore) ListFieldSources(ctx context.Context, dealID, fieldName string) ([]model.Source, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT document_id, value, confidence FROM extracted_fields
		 WHERE deal_id = ? AND field_name = ? ORDER BY document_id`,
		dealID, fieldName,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list sources for %s", fieldName)
	}
	defer rows.Close()

	var sources []model.Source
	for rows.Next() {
		var src model.Source
		var valueJSON string
		if err := rows.Scan(&src.DocumentID, &valueJSON, &src.Confidence); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan source")
		}
		if err := json.Unmarshal([]byte(valueJSON), &src.Value); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal source value")
		}
		sources = append(sources, src)
	}
	return sources, eris.Wrap(rows.Err(), "sqlite: list sources iterate")
}

// Issues

func (s *SQLiteStore) CreateIssue(ctx context.Context, issue *model.Issue) (bool, error) {
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
		return false, eris.Wrap(err, "sqlite: marshal suggested values")
	}
	var rangeJSON sql.NullString
	if issue.BenchmarkRange != nil {
		raw, err := json.Marshal(issue.BenchmarkRange)
		if err != nil {
			return false, eris.Wrap(err, "sqlite: marshal benchmark range")
		}
		rangeJSON = sql.NullString{String: string(raw), Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO issues (id, deal_id, document_id, field_name, kind, priority, reason, suggested_values, benchmark_range, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (deal_id, document_id, field_name, kind) DO NOTHING`,
		issue.ID, issue.DealID, issue.DocumentID, issue.FieldName, string(issue.Kind),
		issue.Priority, issue.Reason, string(suggestedJSON), rangeJSON, string(issue.Status), issue.CreatedAt,
	)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: insert issue")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: insert issue rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) GetIssue(ctx context.Context, issueID string) (*model.Issue, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+issueColumns+` FROM issues WHERE id = ?`, issueID)
	iss, err := scanIssueRow(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "issue %s", issueID)
		}
		return nil, eris.Wrapf(err, "sqlite: get issue %s", issueID)
	}
	return iss, nil
}

func (s *SQLiteStore) ListIssues(ctx context.Context, dealID string, pendingOnly bool) ([]model.Issue, error) {
	query := `SELECT ` + issueColumns + ` FROM issues WHERE deal_id = ?`
	if pendingOnly {
		query += ` AND status = 'pending'`
	}
	query += ` ORDER BY priority DESC, created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, dealID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list issues")
	}
	defer rows.Close()

	var issues []model.Issue
	for rows.Next() {
		iss, err := scanIssueRow(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan issue")
		}
		issues = append(issues, *iss)
	}
	return issues, eris.Wrap(rows.Err(), "sqlite: list issues iterate")
}

func (s *SQLiteStore) ResolveIssue(ctx context.Context, issueID string, req ResolveRequest) (*model.Issue, error) {
	iss, err := s.GetIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}
	if err := applyIssueResolution(iss, req, time.Now().UTC()); err != nil {
		return nil, err
	}

	var valueJSON sql.NullString
	if iss.ResolvedValue != nil {
		raw, err := json.Marshal(iss.ResolvedValue)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: marshal resolved value")
		}
		valueJSON = sql.NullString{String: string(raw), Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE issues SET status = ?, resolved_value = ?, resolved_by = ?, rationale = ?, resolved_at = ?
		 WHERE id = ? AND status = 'pending'`,
		string(iss.Status), valueJSON, iss.ResolvedBy, iss.Rationale, iss.ResolvedAt, issueID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: resolve issue %s", issueID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: resolve issue rows affected")
	}
	if n == 0 {
		return nil, eris.Wrapf(ErrAlreadyResolved, "issue %s", issueID)
	}
	return iss, nil
}

// scanIssueRow decodes an issue row via any Scan-shaped function, so the
// same decoding serves QueryRow and Rows.
func scanIssueRow(scan func(...any) error) (*model.Issue, error) {
	var iss model.Issue
	var kind, status string
	var suggestedJSON, rangeJSON, resolvedJSON sql.NullString

	if err := scan(&iss.ID, &iss.DealID, &iss.DocumentID, &iss.FieldName, &kind, &iss.Priority,
		&iss.Reason, &suggestedJSON, &rangeJSON, &status, &resolvedJSON,
		&iss.ResolvedBy, &iss.Rationale, &iss.CreatedAt, &iss.ResolvedAt); err != nil {
		return nil, err
	}
	iss.Kind = model.IssueKind(kind)
	iss.Status = model.IssueStatus(status)
	if suggestedJSON.Valid && suggestedJSON.String != "" {
		if err := json.Unmarshal([]byte(suggestedJSON.String), &iss.SuggestedValues); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal suggested values")
		}
	}
	if rangeJSON.Valid && rangeJSON.String != "" {
		iss.BenchmarkRange = &model.BenchmarkRange{}
		if err := json.Unmarshal([]byte(rangeJSON.String), iss.BenchmarkRange); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal benchmark range")
		}
	}
	if resolvedJSON.Valid && resolvedJSON.String != "" {
		iss.ResolvedValue = &model.FieldValue{}
		if err := json.Unmarshal([]byte(resolvedJSON.String), iss.ResolvedValue); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal resolved value")
		}
	}
	return &iss, nil
}

// Conflicts

func (s *SQLiteStore) CreateConflict(ctx context.Context, c *model.Conflict) (bool, error) {
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
		return false, eris.Wrap(err, "sqlite: marshal value1")
	}
	value2JSON, err := json.Marshal(c.Value2)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: marshal value2")
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO conflicts (id, deal_id, field_name, document1_id, document2_id, value1, value2,
		   variance_percent, severity, suggestion, suggest_reason, resolution, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (deal_id, field_name, document1_id, document2_id) DO NOTHING`,
		c.ID, c.DealID, c.FieldName, c.Document1ID, c.Document2ID, string(value1JSON), string(value2JSON),
		c.VariancePercent, string(c.Severity), string(c.Suggestion), c.SuggestReason,
		string(c.Resolution), c.CreatedAt,
	)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: insert conflict")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: insert conflict rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) GetConflict(ctx context.Context, conflictID string) (*model.Conflict, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+conflictColumns+` FROM conflicts WHERE id = ?`, conflictID)
	c, err := scanConflictRow(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "conflict %s", conflictID)
		}
		return nil, eris.Wrapf(err, "sqlite: get conflict %s", conflictID)
	}
	return c, nil
}

func (s *SQLiteStore) ListConflicts(ctx context.Context, dealID string, pendingOnly bool) ([]model.Conflict, error) {
	query := `SELECT ` + conflictColumns + ` FROM conflicts WHERE deal_id = ?`
	if pendingOnly {
		query += ` AND resolution = 'pending'`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, dealID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list conflicts")
	}
	defer rows.Close()

	var conflicts []model.Conflict
	for rows.Next() {
		c, err := scanConflictRow(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan conflict")
		}
		conflicts = append(conflicts, *c)
	}
	return conflicts, eris.Wrap(rows.Err(), "sqlite: list conflicts iterate")
}

func (s *SQLiteStore) ResolveConflict(ctx context.Context, conflictID string, req ResolveRequest) (*model.Conflict, error) {
	c, err := s.GetConflict(ctx, conflictID)
	if err != nil {
		return nil, err
	}
	if err := applyConflictResolution(c, req, time.Now().UTC()); err != nil {
		return nil, err
	}

	var valueJSON sql.NullString
	if c.ResolvedValue != nil {
		raw, err := json.Marshal(c.ResolvedValue)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: marshal resolved value")
		}
		valueJSON = sql.NullString{String: string(raw), Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE conflicts SET resolution = ?, resolved_value = ?, resolved_by = ?, rationale = ?, resolved_at = ?
		 WHERE id = ? AND resolution = 'pending'`,
		string(c.Resolution), valueJSON, c.ResolvedBy, c.Rationale, c.ResolvedAt, conflictID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: resolve conflict %s", conflictID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: resolve conflict rows affected")
	}
	if n == 0 {
		return nil, eris.Wrapf(ErrAlreadyResolved, "conflict %s", conflictID)
	}
	return c, nil
}

func scanConflictRow(scan func(...any) error) (*model.Conflict, error) {
	var c model.Conflict
	var severity, suggestion, resolution string
	var value1JSON, value2JSON string
	var resolvedJSON sql.NullString

	if err := scan(&c.ID, &c.DealID, &c.FieldName, &c.Document1ID, &c.Document2ID,
		&value1JSON, &value2JSON, &c.VariancePercent, &severity, &suggestion, &c.SuggestReason,
		&resolution, &resolvedJSON, &c.ResolvedBy, &c.Rationale, &c.CreatedAt, &c.ResolvedAt); err != nil {
		return nil, err
	}
	c.Severity = model.ConflictSeverity(severity)
	c.Suggestion = model.ConflictResolution(suggestion)
	c.Resolution = model.ConflictResolution(resolution)
	if err := json.Unmarshal([]byte(value1JSON), &c.Value1); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal value1")
	}
	if err := json.Unmarshal([]byte(value2JSON), &c.Value2); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal value2")
	}
	if resolvedJSON.Valid && resolvedJSON.String != "" {
		c.ResolvedValue = &model.FieldValue{}
		if err := json.Unmarshal([]byte(resolvedJSON.String), c.ResolvedValue); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal resolved value")
		}
	}
	return &c, nil
}

// Reconciled snapshots

func (s *SQLiteStore) SaveReconciledFields(ctx context.Context, fields []model.ReconciledField) error {
	if len(fields) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, rf := range fields {
		sourcesJSON, err := json.Marshal(rf.Sources)
		if err != nil {
			return eris.Wrapf(err, "sqlite: marshal sources for %s", rf.FieldName)
		}
		valueJSON, err := json.Marshal(rf.Value)
		if err != nil {
			return eris.Wrapf(err, "sqlite: marshal value for %s", rf.FieldName)
		}
		updatedAt := rf.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = now
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO reconciled_fields (deal_id, field_name, sources, value, confidence, methodology, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (deal_id, field_name) DO UPDATE SET
			   sources = excluded.sources, value = excluded.value, confidence = excluded.confidence,
			   methodology = excluded.methodology, updated_at = excluded.updated_at`,
			rf.DealID, rf.FieldName, string(sourcesJSON), string(valueJSON), rf.Confidence, rf.Methodology, updatedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: upsert reconciled field %s", rf.FieldName)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit reconciled fields")
}

func (s *SQLiteStore) ListReconciledFields(ctx context.Context, dealID string) ([]model.ReconciledField, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT deal_id, field_name, sources, value, confidence, methodology, updated_at
		 FROM reconciled_fields WHERE deal_id = ? ORDER BY field_name`,
		dealID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list reconciled fields")
	}
	defer rows.Close()

	var fields []model.ReconciledField
	for rows.Next() {
		var rf model.ReconciledField
		var sourcesJSON, valueJSON string
		if err := rows.Scan(&rf.DealID, &rf.FieldName, &sourcesJSON, &valueJSON, &rf.Confidence, &rf.Methodology, &rf.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan reconciled field")
		}
		if err := json.Unmarshal([]byte(sourcesJSON), &rf.Sources); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal sources")
		}
		if err := json.Unmarshal([]byte(valueJSON), &rf.Value); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal reconciled value")
		}
		fields = append(fields, rf)
	}
	return fields, eris.Wrap(rows.Err(), "sqlite: list reconciled fields iterate")
}

// Flag

func (s *SQLiteStore) RecomputeUnresolvedFlag(ctx context.Context, dealID string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	var flag bool
	err = tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM issues WHERE deal_id = ? AND status = 'pending')
		     OR EXISTS (SELECT 1 FROM conflicts WHERE deal_id = ? AND resolution = 'pending')`,
		dealID, dealID,
	).Scan(&flag)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: compute flag for %s", dealID)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE deals SET has_unresolved_conflicts = ?, updated_at = ? WHERE id = ?`,
		flag, time.Now().UTC(), dealID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: update flag for %s", dealID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: update flag rows affected")
	}
	if n == 0 {
		return false, eris.Wrapf(ErrNotFound, "deal %s", dealID)
	}
	return flag, eris.Wrap(tx.Commit(), "sqlite: commit flag")
}
