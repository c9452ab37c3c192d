package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/lead-engine/internal/model"
)

// SQLiteStore implements LeadStore using modernc.org/sqlite. Timestamps are
// stored as unix milliseconds so ordering and equality match Postgres.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS leads (
	id                     TEXT PRIMARY KEY,
	doc                    TEXT NOT NULL,
	dup_key                TEXT NOT NULL DEFAULT '',
	status                 TEXT NOT NULL DEFAULT '',
	verification_status    TEXT NOT NULL DEFAULT '',
	is_active              INTEGER NOT NULL DEFAULT 1,
	last_checked           INTEGER,
	lead_hunt_workflow_id  TEXT NOT NULL DEFAULT '',
	embedding              TEXT,
	embedding_model        TEXT NOT NULL DEFAULT '',
	embedding_generated_at INTEGER,
	created_at             INTEGER NOT NULL,
	updated_at             INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_leads_created ON leads(created_at, id);
CREATE INDEX IF NOT EXISTS idx_leads_dup_key ON leads(dup_key);
CREATE INDEX IF NOT EXISTS idx_leads_workflow ON leads(lead_hunt_workflow_id);
CREATE INDEX IF NOT EXISTS idx_leads_embedding_generated ON leads(embedding_generated_at, id);

CREATE TABLE IF NOT EXISTS procurement_links (
	id                    TEXT PRIMARY KEY,
	state                 TEXT NOT NULL DEFAULT '',
	capital               TEXT NOT NULL DEFAULT '',
	official_website      TEXT NOT NULL DEFAULT '',
	procurement_link      TEXT NOT NULL UNIQUE,
	requires_registration INTEGER,
	status                TEXT NOT NULL DEFAULT 'pending',
	created_at            INTEGER NOT NULL,
	updated_at            INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_procurement_links_status ON procurement_links(status);
`

const sqliteLeadColumns = `id, doc, status, verification_status, is_active, last_checked,
	lead_hunt_workflow_id, embedding, embedding_model, embedding_generated_at, created_at, updated_at`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func toMillis(t time.Time) int64 {
	return Millis(t).UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func timeFromNull(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromMillis(n.Int64)
	return &t
}

func encodeVector(v []float32) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, eris.Wrap(err, "sqlite: marshal embedding")
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSQLiteLead(row scanner) (*model.Lead, error) {
	var (
		c                     leadColumns
		doc                   string
		isActive              int
		lastChecked, embGenAt sql.NullInt64
		embedding             sql.NullString
		createdAt, updatedAt  int64
	)
	if err := row.Scan(&c.ID, &doc, &c.Status, &c.VerificationStatus, &isActive, &lastChecked,
		&c.WorkflowID, &embedding, &c.EmbeddingModel, &embGenAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	c.IsActive = isActive != 0
	c.LastChecked = timeFromNull(lastChecked)
	c.EmbeddingGeneratedAt = timeFromNull(embGenAt)
	c.CreatedAt = fromMillis(createdAt)
	c.UpdatedAt = fromMillis(updatedAt)
	if embedding.Valid {
		if err := json.Unmarshal([]byte(embedding.String), &c.Embedding); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal embedding %s", c.ID)
		}
	}
	return decodeLead([]byte(doc), c)
}

func (s *SQLiteStore) queryLeads(ctx context.Context, op string, query string, args ...any) ([]model.Lead, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: %s", op)
	}
	defer rows.Close() //nolint:errcheck

	var leads []model.Lead
	for rows.Next() {
		l, err := scanSQLiteLead(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan lead (%s)", op)
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrapf(rows.Err(), "sqlite: %s iterate", op)
}

func (s *SQLiteStore) GetLead(ctx context.Context, id string) (*model.Lead, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteLeadColumns+` FROM leads WHERE id = ?`, id)
	l, err := scanSQLiteLead(row)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, model.NewNotFound("lead", id)
		}
		return nil, eris.Wrapf(err, "sqlite: get lead %s", id)
	}
	return l, nil
}

func (s *SQLiteStore) InsertLead(ctx context.Context, lead *model.Lead) (string, error) {
	doc, c, err := prepareInsert(lead)
	if err != nil {
		return "", err
	}
	emb, err := encodeVector(c.Embedding)
	if err != nil {
		return "", err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO leads (id, doc, dup_key, status, verification_status, is_active, last_checked,
			lead_hunt_workflow_id, embedding, embedding_model, embedding_generated_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, string(doc), c.DupKey, c.Status, c.VerificationStatus, boolInt(c.IsActive), nullMillis(c.LastChecked),
		c.WorkflowID, emb, c.EmbeddingModel, nullMillis(c.EmbeddingGeneratedAt),
		toMillis(c.CreatedAt), toMillis(c.UpdatedAt),
	)
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: insert lead %s", c.ID)
	}
	return c.ID, nil
}

func (s *SQLiteStore) PatchLead(ctx context.Context, id string, patch model.LeadPatch) error {
	var isActive sql.NullInt64
	if patch.IsActive != nil {
		isActive = sql.NullInt64{Int64: int64(boolInt(*patch.IsActive)), Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET
			status = COALESCE(?, status),
			verification_status = COALESCE(?, verification_status),
			is_active = COALESCE(?, is_active),
			last_checked = COALESCE(?, last_checked),
			updated_at = ?
		 WHERE id = ?`,
		nullString(patch.Status), nullString(patch.VerificationStatus), isActive,
		nullMillis(patch.LastChecked), toMillis(time.Now()), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: patch lead %s", id)
	}
	return checkRowsAffected(res, "lead", id)
}

func (s *SQLiteStore) DeleteLead(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM leads WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete lead %s", id)
	}
	return checkRowsAffected(res, "lead", id)
}

func (s *SQLiteStore) ScanLeads(ctx context.Context) ([]model.Lead, error) {
	return s.queryLeads(ctx, "scan leads",
		`SELECT `+sqliteLeadColumns+` FROM leads ORDER BY created_at ASC, id ASC`)
}

func (s *SQLiteStore) LeadsCreatedBefore(ctx context.Context, before *time.Time, limit int) ([]model.Lead, error) {
	if before == nil {
		return s.queryLeads(ctx, "leads newest",
			`SELECT `+sqliteLeadColumns+` FROM leads ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	}
	return s.queryLeads(ctx, "leads created before",
		`SELECT `+sqliteLeadColumns+` FROM leads WHERE created_at < ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`, toMillis(*before), limit)
}

// LeadsCreatedAt returns leads created exactly at at whose id sorts below
// belowID, highest id first.
func (s *SQLiteStore) LeadsCreatedAt(ctx context.Context, at time.Time, belowID string, limit int) ([]model.Lead, error) {
	return s.queryLeads(ctx, "leads created at",
		`SELECT `+sqliteLeadColumns+` FROM leads WHERE created_at = ? AND id < ?
		 ORDER BY id DESC LIMIT ?`, toMillis(at), belowID, limit)
}

func (s *SQLiteStore) HasLeadsCreatedBefore(ctx context.Context, before time.Time) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM leads WHERE created_at < ?)`, toMillis(before),
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: probe leads created before")
	}
	return exists != 0, nil
}

func (s *SQLiteStore) HasLeadsCreatedAt(ctx context.Context, at time.Time, belowID string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM leads WHERE created_at = ? AND id < ?)`, toMillis(at), belowID,
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: probe tie group")
	}
	return exists != 0, nil
}

func (s *SQLiteStore) DuplicateKeyExists(ctx context.Context, key string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM leads WHERE dup_key = ?)`, key,
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: duplicate key lookup")
	}
	return exists != 0, nil
}

func (s *SQLiteStore) ListLeadsByWorkflow(ctx context.Context, workflowID string) ([]model.Lead, error) {
	return s.queryLeads(ctx, "leads by workflow",
		`SELECT `+sqliteLeadColumns+` FROM leads WHERE lead_hunt_workflow_id = ?
		 ORDER BY created_at ASC, id ASC`, workflowID)
}

func (s *SQLiteStore) LeadStats(ctx context.Context) (*model.LeadStats, error) {
	var st model.LeadStats
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*), COALESCE(SUM(is_active), 0), COALESCE(SUM(1 - is_active), 0) FROM leads`,
	).Scan(&st.Total, &st.Active, &st.Inactive)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: lead stats")
	}
	return &st, nil
}

func (s *SQLiteStore) LeadsWithEmbedding(ctx context.Context, index EmbeddingIndex, after EmbeddingPosition, limit int) ([]EmbeddingRef, error) {
	var (
		query string
		args  []any
	)
	switch index {
	case EmbeddingIndexPrimary:
		if after.AfterGeneratedAt == nil {
			query = `SELECT id, embedding_generated_at FROM leads WHERE embedding_generated_at IS NOT NULL
				ORDER BY embedding_generated_at, id LIMIT ?`
			args = []any{limit}
		} else {
			at := toMillis(*after.AfterGeneratedAt)
			query = `SELECT id, embedding_generated_at FROM leads WHERE embedding_generated_at IS NOT NULL
				AND (embedding_generated_at > ? OR (embedding_generated_at = ? AND id > ?))
				ORDER BY embedding_generated_at, id LIMIT ?`
			args = []any{at, at, after.AfterID, limit}
		}
	case EmbeddingIndexLegacy:
		query = `SELECT id, embedding_generated_at FROM leads
			WHERE embedding_generated_at IS NULL AND (embedding IS NOT NULL OR embedding_model <> '')
			AND id > ?
			ORDER BY id LIMIT ?`
		args = []any{after.AfterID, limit}
	default:
		return nil, eris.Errorf("sqlite: unknown embedding index %q", index)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: read embedding index %s", index)
	}
	defer rows.Close() //nolint:errcheck

	var refs []EmbeddingRef
	for rows.Next() {
		var (
			r  EmbeddingRef
			at sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &at); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan embedding ref")
		}
		r.GeneratedAt = timeFromNull(at)
		refs = append(refs, r)
	}
	return refs, eris.Wrap(rows.Err(), "sqlite: embedding index iterate")
}

func (s *SQLiteStore) SetEmbedding(ctx context.Context, id string, vector []float32, embeddingModel string, generatedAt time.Time) error {
	if err := checkEmbedding(vector); err != nil {
		return err
	}
	emb, err := encodeVector(vector)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET embedding = ?, embedding_model = ?, embedding_generated_at = ?, updated_at = ? WHERE id = ?`,
		emb, embeddingModel, toMillis(generatedAt), toMillis(time.Now()), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set embedding %s", id)
	}
	return checkRowsAffected(res, "lead", id)
}

func (s *SQLiteStore) ClearEmbedding(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET embedding = NULL, embedding_model = '', embedding_generated_at = NULL, updated_at = ? WHERE id = ?`,
		toMillis(time.Now()), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: clear embedding %s", id)
	}
	return checkRowsAffected(res, "lead", id)
}

func (s *SQLiteStore) UpsertProcurementLink(ctx context.Context, link *model.ProcurementLink) (string, error) {
	if link.ID == "" {
		id, err := newLinkID()
		if err != nil {
			return "", err
		}
		link.ID = id
	}
	if link.Status == "" {
		link.Status = model.LinkStatusPending
	}
	now := toMillis(time.Now())

	var id string
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO procurement_links (id, state, capital, official_website, procurement_link,
			requires_registration, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (procurement_link) DO UPDATE SET
			state = excluded.state,
			capital = excluded.capital,
			official_website = excluded.official_website,
			requires_registration = excluded.requires_registration,
			status = excluded.status,
			updated_at = excluded.updated_at
		 RETURNING id`,
		link.ID, link.State, link.Capital, link.OfficialWebsite, link.ProcurementLink,
		nullBool(link.RequiresRegistration), string(link.Status), now, now,
	).Scan(&id)
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: upsert procurement link %s", link.ProcurementLink)
	}
	link.ID = id
	return id, nil
}

// InsertProcurementLinks inserts links in a single transaction. SQLite has
// no COPY; a conflict on procurement_link rolls back the whole batch.
func (s *SQLiteStore) InsertProcurementLinks(ctx context.Context, links []model.ProcurementLink) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin link insert")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO procurement_links (id, state, capital, official_website, procurement_link,
			requires_registration, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare link insert")
	}
	defer stmt.Close() //nolint:errcheck

	now := toMillis(time.Now())
	var n int64
	for _, l := range links {
		id := l.ID
		if id == "" {
			if id, err = newLinkID(); err != nil {
				return 0, err
			}
		}
		status := l.Status
		if status == "" {
			status = model.LinkStatusPending
		}
		if _, err := stmt.ExecContext(ctx, id, l.State, l.Capital, l.OfficialWebsite, l.ProcurementLink,
			nullBool(l.RequiresRegistration), string(status), now, now); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert procurement link %s", l.ProcurementLink)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit link insert")
	}
	return n, nil
}

func (s *SQLiteStore) SetProcurementLinkStatus(ctx context.Context, id string, status model.LinkStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE procurement_links SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), toMillis(time.Now()), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set procurement link status %s", id)
	}
	return checkRowsAffected(res, "procurement link", id)
}

func (s *SQLiteStore) ListProcurementLinks(ctx context.Context, status model.LinkStatus) ([]model.ProcurementLink, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, state, capital, official_website, procurement_link, requires_registration,
			status, created_at, updated_at
		 FROM procurement_links WHERE status = ? ORDER BY state, procurement_link`,
		string(status),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list procurement links %s", status)
	}
	defer rows.Close() //nolint:errcheck

	var links []model.ProcurementLink
	for rows.Next() {
		var (
			l                    model.ProcurementLink
			reqReg               sql.NullBool
			st                   string
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&l.ID, &l.State, &l.Capital, &l.OfficialWebsite, &l.ProcurementLink,
			&reqReg, &st, &createdAt, &updatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan procurement link")
		}
		if reqReg.Valid {
			v := reqReg.Bool
			l.RequiresRegistration = &v
		}
		l.Status = model.LinkStatus(st)
		l.CreatedAt = fromMillis(createdAt)
		l.UpdatedAt = fromMillis(updatedAt)
		links = append(links, l)
	}
	return links, eris.Wrap(rows.Err(), "sqlite: list procurement links iterate")
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// checkRowsAffected returns a NotFoundError if the result affected zero rows.
func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %s", kind, id)
	}
	if n == 0 {
		return model.NewNotFound(kind, id)
	}
	return nil
}
