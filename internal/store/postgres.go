package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-engine/internal/db"
	"github.com/sells-group/lead-engine/internal/model"
)

// PostgresStore implements LeadStore using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const pgLeadColumns = `id, doc, status, verification_status, is_active, last_checked,
	lead_hunt_workflow_id, embedding, embedding_model, embedding_generated_at, created_at, updated_at`

const pgLinkColumns = `id, state, capital, official_website, procurement_link,
	requires_registration, status, created_at, updated_at`

// preparedStatements lists queries prepared on each new connection for the
// hot paths: point reads, page fetches and embedding clears.
var preparedStatements = map[string]string{
	"get_lead":        `SELECT ` + pgLeadColumns + ` FROM leads WHERE id = $1`,
	"delete_lead":     `DELETE FROM leads WHERE id = $1`,
	"clear_embedding": `UPDATE leads SET embedding = NULL, embedding_model = '', embedding_generated_at = NULL, updated_at = $2 WHERE id = $1`,
	"dup_key_exists":  `SELECT EXISTS (SELECT 1 FROM leads WHERE dup_key = $1)`,
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

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

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

// NewPostgresFromPool wraps an existing pool, e.g. a pgxmock pool in tests.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS leads (
	id                     TEXT PRIMARY KEY,
	doc                    JSONB NOT NULL,
	dup_key                TEXT NOT NULL DEFAULT '',
	status                 TEXT NOT NULL DEFAULT '',
	verification_status    TEXT NOT NULL DEFAULT '',
	is_active              BOOLEAN NOT NULL DEFAULT true,
	last_checked           TIMESTAMPTZ,
	lead_hunt_workflow_id  TEXT NOT NULL DEFAULT '',
	embedding              REAL[],
	embedding_model        TEXT NOT NULL DEFAULT '',
	embedding_generated_at TIMESTAMPTZ,
	created_at             TIMESTAMPTZ NOT NULL,
	updated_at             TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_leads_created ON leads (created_at DESC, id COLLATE "C" DESC);
CREATE INDEX IF NOT EXISTS idx_leads_dup_key ON leads (dup_key) WHERE dup_key <> '';
CREATE INDEX IF NOT EXISTS idx_leads_workflow ON leads (lead_hunt_workflow_id) WHERE lead_hunt_workflow_id <> '';
CREATE INDEX IF NOT EXISTS idx_leads_embedding_generated ON leads (embedding_generated_at, id COLLATE "C")
	WHERE embedding_generated_at IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_leads_embedding_legacy ON leads (id COLLATE "C")
	WHERE embedding_generated_at IS NULL AND (embedding IS NOT NULL OR embedding_model <> '');

CREATE TABLE IF NOT EXISTS procurement_links (
	id                    TEXT PRIMARY KEY,
	state                 TEXT NOT NULL DEFAULT '',
	capital               TEXT NOT NULL DEFAULT '',
	official_website      TEXT NOT NULL DEFAULT '',
	procurement_link      TEXT NOT NULL UNIQUE,
	requires_registration BOOLEAN,
	status                TEXT NOT NULL DEFAULT 'pending',
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_procurement_links_status ON procurement_links(status);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func scanPgLead(row pgx.Row) (*model.Lead, error) {
	var c leadColumns
	var doc []byte
	if err := row.Scan(&c.ID, &doc, &c.Status, &c.VerificationStatus, &c.IsActive, &c.LastChecked,
		&c.WorkflowID, &c.Embedding, &c.EmbeddingModel, &c.EmbeddingGeneratedAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return decodeLead(doc, c)
}

func (s *PostgresStore) queryLeads(ctx context.Context, op string, sql string, args ...any) ([]model.Lead, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: %s", op)
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		l, err := scanPgLead(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: scan lead (%s)", op)
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrapf(rows.Err(), "postgres: %s iterate", op)
}

func (s *PostgresStore) GetLead(ctx context.Context, id string) (*model.Lead, error) {
	l, err := scanPgLead(s.pool.QueryRow(ctx, `SELECT `+pgLeadColumns+` FROM leads WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.NewNotFound("lead", id)
		}
		return nil, eris.Wrapf(err, "postgres: get lead %s", id)
	}
	return l, nil
}

func (s *PostgresStore) InsertLead(ctx context.Context, lead *model.Lead) (string, error) {
	doc, c, err := prepareInsert(lead)
	if err != nil {
		return "", err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO leads (id, doc, dup_key, status, verification_status, is_active, last_checked,
			lead_hunt_workflow_id, embedding, embedding_model, embedding_generated_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		c.ID, doc, c.DupKey, c.Status, c.VerificationStatus, c.IsActive, c.LastChecked,
		c.WorkflowID, c.Embedding, c.EmbeddingModel, c.EmbeddingGeneratedAt, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return "", eris.Wrapf(err, "postgres: insert lead %s", c.ID)
	}
	return c.ID, nil
}

func (s *PostgresStore) PatchLead(ctx context.Context, id string, patch model.LeadPatch) error {
	var lastChecked *time.Time
	if patch.LastChecked != nil {
		t := Millis(*patch.LastChecked)
		lastChecked = &t
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET
			status = COALESCE($2, status),
			verification_status = COALESCE($3, verification_status),
			is_active = COALESCE($4, is_active),
			last_checked = COALESCE($5, last_checked),
			updated_at = $6
		 WHERE id = $1`,
		id, patch.Status, patch.VerificationStatus, patch.IsActive, lastChecked, Millis(time.Now()),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: patch lead %s", id)
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFound("lead", id)
	}
	return nil
}

func (s *PostgresStore) DeleteLead(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM leads WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete lead %s", id)
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFound("lead", id)
	}
	return nil
}

func (s *PostgresStore) ScanLeads(ctx context.Context) ([]model.Lead, error) {
	return s.queryLeads(ctx, "scan leads",
		`SELECT `+pgLeadColumns+` FROM leads ORDER BY created_at ASC, id COLLATE "C" ASC`)
}

func (s *PostgresStore) LeadsCreatedBefore(ctx context.Context, before *time.Time, limit int) ([]model.Lead, error) {
	if before == nil {
		return s.queryLeads(ctx, "leads newest",
			`SELECT `+pgLeadColumns+` FROM leads ORDER BY created_at DESC, id COLLATE "C" DESC LIMIT $1`, limit)
	}
	return s.queryLeads(ctx, "leads created before",
		`SELECT `+pgLeadColumns+` FROM leads WHERE created_at < $1
		 ORDER BY created_at DESC, id COLLATE "C" DESC LIMIT $2`, Millis(*before), limit)
}

// LeadsCreatedAt returns leads created exactly at at whose id sorts below
// belowID bytewise, highest id first.
func (s *PostgresStore) LeadsCreatedAt(ctx context.Context, at time.Time, belowID string, limit int) ([]model.Lead, error) {
	return s.queryLeads(ctx, "leads created at",
		`SELECT `+pgLeadColumns+` FROM leads WHERE created_at = $1 AND id COLLATE "C" < $2
		 ORDER BY id COLLATE "C" DESC LIMIT $3`, Millis(at), belowID, limit)
}

func (s *PostgresStore) HasLeadsCreatedBefore(ctx context.Context, before time.Time) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM leads WHERE created_at < $1)`, Millis(before),
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrap(err, "postgres: probe leads created before")
	}
	return exists, nil
}

func (s *PostgresStore) HasLeadsCreatedAt(ctx context.Context, at time.Time, belowID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM leads WHERE created_at = $1 AND id COLLATE "C" < $2)`, Millis(at), belowID,
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrap(err, "postgres: probe tie group")
	}
	return exists, nil
}

func (s *PostgresStore) DuplicateKeyExists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM leads WHERE dup_key = $1)`, key,
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrap(err, "postgres: duplicate key lookup")
	}
	return exists, nil
}

func (s *PostgresStore) ListLeadsByWorkflow(ctx context.Context, workflowID string) ([]model.Lead, error) {
	return s.queryLeads(ctx, "leads by workflow",
		`SELECT `+pgLeadColumns+` FROM leads WHERE lead_hunt_workflow_id = $1
		 ORDER BY created_at ASC, id COLLATE "C" ASC`, workflowID)
}

func (s *PostgresStore) LeadStats(ctx context.Context) (*model.LeadStats, error) {
	var st model.LeadStats
	err := s.pool.QueryRow(ctx,
		`SELECT count(*), count(*) FILTER (WHERE is_active), count(*) FILTER (WHERE NOT is_active) FROM leads`,
	).Scan(&st.Total, &st.Active, &st.Inactive)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: lead stats")
	}
	return &st, nil
}

func (s *PostgresStore) LeadsWithEmbedding(ctx context.Context, index EmbeddingIndex, after EmbeddingPosition, limit int) ([]EmbeddingRef, error) {
	var (
		sql  string
		args []any
	)
	switch index {
	case EmbeddingIndexPrimary:
		if after.AfterGeneratedAt == nil {
			sql = `SELECT id, embedding_generated_at FROM leads WHERE embedding_generated_at IS NOT NULL
				ORDER BY embedding_generated_at, id COLLATE "C" LIMIT $1`
			args = []any{limit}
		} else {
			sql = `SELECT id, embedding_generated_at FROM leads WHERE embedding_generated_at IS NOT NULL
				AND (embedding_generated_at > $1 OR (embedding_generated_at = $1 AND id COLLATE "C" > $2))
				ORDER BY embedding_generated_at, id COLLATE "C" LIMIT $3`
			args = []any{Millis(*after.AfterGeneratedAt), after.AfterID, limit}
		}
	case EmbeddingIndexLegacy:
		sql = `SELECT id, embedding_generated_at FROM leads
			WHERE embedding_generated_at IS NULL AND (embedding IS NOT NULL OR embedding_model <> '')
			AND id COLLATE "C" > $1
			ORDER BY id COLLATE "C" LIMIT $2`
		args = []any{after.AfterID, limit}
	default:
		return nil, eris.Errorf("postgres: unknown embedding index %q", index)
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: read embedding index %s", index)
	}
	defer rows.Close()

	var refs []EmbeddingRef
	for rows.Next() {
		var r EmbeddingRef
		if err := rows.Scan(&r.ID, &r.GeneratedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan embedding ref")
		}
		refs = append(refs, r)
	}
	return refs, eris.Wrap(rows.Err(), "postgres: embedding index iterate")
}

func (s *PostgresStore) SetEmbedding(ctx context.Context, id string, vector []float32, embeddingModel string, generatedAt time.Time) error {
	if err := checkEmbedding(vector); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET embedding = $2, embedding_model = $3, embedding_generated_at = $4, updated_at = $5 WHERE id = $1`,
		id, vector, embeddingModel, Millis(generatedAt), Millis(time.Now()),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set embedding %s", id)
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFound("lead", id)
	}
	return nil
}

func (s *PostgresStore) ClearEmbedding(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET embedding = NULL, embedding_model = '', embedding_generated_at = NULL, updated_at = $2 WHERE id = $1`,
		id, Millis(time.Now()),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: clear embedding %s", id)
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFound("lead", id)
	}
	return nil
}

func (s *PostgresStore) UpsertProcurementLink(ctx context.Context, link *model.ProcurementLink) (string, error) {
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
	now := Millis(time.Now())

	var id string
	err := s.pool.QueryRow(ctx,
		`INSERT INTO procurement_links (id, state, capital, official_website, procurement_link,
			requires_registration, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		 ON CONFLICT (procurement_link) DO UPDATE SET
			state = EXCLUDED.state,
			capital = EXCLUDED.capital,
			official_website = EXCLUDED.official_website,
			requires_registration = EXCLUDED.requires_registration,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
		 RETURNING id`,
		link.ID, link.State, link.Capital, link.OfficialWebsite, link.ProcurementLink,
		link.RequiresRegistration, string(link.Status), now,
	).Scan(&id)
	if err != nil {
		return "", eris.Wrapf(err, "postgres: upsert procurement link %s", link.ProcurementLink)
	}
	link.ID = id
	return id, nil
}

// InsertProcurementLinks bulk-loads new links with COPY. Any conflict with
// an existing procurement_link fails the whole load.
func (s *PostgresStore) InsertProcurementLinks(ctx context.Context, links []model.ProcurementLink) (int64, error) {
	now := Millis(time.Now())
	rows := make([][]any, 0, len(links))
	for _, l := range links {
		id := l.ID
		if id == "" {
			var err error
			if id, err = newLinkID(); err != nil {
				return 0, err
			}
		}
		status := l.Status
		if status == "" {
			status = model.LinkStatusPending
		}
		rows = append(rows, []any{
			id, l.State, l.Capital, l.OfficialWebsite, l.ProcurementLink,
			l.RequiresRegistration, string(status), now, now,
		})
	}
	return db.CopyFrom(ctx, s.pool, "procurement_links", []string{
		"id", "state", "capital", "official_website", "procurement_link",
		"requires_registration", "status", "created_at", "updated_at",
	}, rows)
}

func (s *PostgresStore) SetProcurementLinkStatus(ctx context.Context, id string, status model.LinkStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE procurement_links SET status = $2, updated_at = $3 WHERE id = $1`,
		id, string(status), Millis(time.Now()),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set procurement link status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFound("procurement link", id)
	}
	return nil
}

func (s *PostgresStore) ListProcurementLinks(ctx context.Context, status model.LinkStatus) ([]model.ProcurementLink, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgLinkColumns+` FROM procurement_links WHERE status = $1 ORDER BY state, procurement_link`,
		string(status),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list procurement links %s", status)
	}
	defer rows.Close()

	var links []model.ProcurementLink
	for rows.Next() {
		var l model.ProcurementLink
		var st string
		if err := rows.Scan(&l.ID, &l.State, &l.Capital, &l.OfficialWebsite, &l.ProcurementLink,
			&l.RequiresRegistration, &st, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan procurement link")
		}
		l.Status = model.LinkStatus(st)
		links = append(links, l)
	}
	return links, eris.Wrap(rows.Err(), "postgres: list procurement links iterate")
}
