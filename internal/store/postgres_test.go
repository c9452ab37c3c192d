package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-engine/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS leads`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetLead_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, doc, .* FROM leads WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetLead(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetLead_QueryError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM leads WHERE id = \$1`).
		WithArgs("l1").
		WillReturnError(assert.AnError)

	_, err := s.GetLead(context.Background(), "l1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get lead l1")
	assert.NotErrorIs(t, err, model.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertLead(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	lead := testLead("paving", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	lead.ID = "lead-1"
	lead.ContractID = "RFP-1"

	mock.ExpectExec(`INSERT INTO leads`).
		WithArgs("lead-1", pgxmock.AnyArg(), "contractID+source:rfp-1|paving.pdf|https://austin.gov/bids/paving",
			model.DefaultStatus, "", true, pgxmock.AnyArg(), "", pgxmock.AnyArg(), "", pgxmock.AnyArg(),
			lead.CreatedAt, lead.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	id, err := s.InsertLead(context.Background(), lead)
	require.NoError(t, err)
	assert.Equal(t, "lead-1", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PatchLead_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	status := "Closed"
	mock.ExpectExec(`UPDATE leads SET`).
		WithArgs("missing", &status, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.PatchLead(context.Background(), "missing", model.LeadPatch{Status: &status})
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteLead(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM leads WHERE id = \$1`).
		WithArgs("l1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`DELETE FROM leads WHERE id = \$1`).
		WithArgs("l1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, s.DeleteLead(context.Background(), "l1"))
	assert.ErrorIs(t, s.DeleteLead(context.Background(), "l1"), model.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DuplicateKeyExists(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM leads WHERE dup_key = \$1\)`).
		WithArgs("source:a|b").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := s.DuplicateKeyExists(context.Background(), "source:a|b")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_HasLeadsCreatedBefore(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM leads WHERE created_at < \$1\)`).
		WithArgs(at).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	has, err := s.HasLeadsCreatedBefore(context.Background(), at)
	require.NoError(t, err)
	assert.False(t, has)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_HasLeadsCreatedAt(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM leads WHERE created_at = \$1 AND id COLLATE "C" < \$2\)`).
		WithArgs(at, "l5").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	has, err := s.HasLeadsCreatedAt(context.Background(), at, "l5")
	require.NoError(t, err)
	assert.True(t, has)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LeadStats(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT count\(\*\)`).
		WillReturnRows(pgxmock.NewRows([]string{"total", "active", "inactive"}).AddRow(5, 3, 2))

	stats, err := s.LeadStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.LeadStats{Total: 5, Active: 3, Inactive: 2}, *stats)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LeadsWithEmbedding_Primary(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	gen := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`WHERE embedding_generated_at IS NOT NULL\s+AND \(embedding_generated_at > \$1`).
		WithArgs(gen, "e1", 2).
		WillReturnRows(pgxmock.NewRows([]string{"id", "embedding_generated_at"}).
			AddRow("e2", &gen).
			AddRow("e3", &gen))

	refs, err := s.LeadsWithEmbedding(context.Background(), EmbeddingIndexPrimary,
		EmbeddingPosition{AfterGeneratedAt: &gen, AfterID: "e1"}, 2)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "e2", refs[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LeadsWithEmbedding_Legacy(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`WHERE embedding_generated_at IS NULL AND \(embedding IS NOT NULL OR embedding_model <> ''\)`).
		WithArgs("", 50).
		WillReturnRows(pgxmock.NewRows([]string{"id", "embedding_generated_at"}).AddRow("e9", (*time.Time)(nil)))

	refs, err := s.LeadsWithEmbedding(context.Background(), EmbeddingIndexLegacy, EmbeddingPosition{}, 50)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Nil(t, refs[0].GeneratedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetEmbeddingRejectsEmptyVector(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	err := s.SetEmbedding(context.Background(), "l1", []float32{}, "text-embed", time.Now())
	assert.True(t, model.IsValidation(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ClearEmbedding(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE leads SET embedding = NULL, embedding_model = '', embedding_generated_at = NULL`).
		WithArgs("e1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.ClearEmbedding(context.Background(), "e1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ClearEmbedding_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE leads SET embedding = NULL`).
		WithArgs("e1", pgxmock.AnyArg()).
		WillReturnError(assert.AnError)

	err := s.ClearEmbedding(context.Background(), "e1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clear embedding e1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertProcurementLink(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`INSERT INTO procurement_links .* ON CONFLICT \(procurement_link\) DO UPDATE`).
		WithArgs(pgxmock.AnyArg(), "Texas", "Austin", "", "https://texas.gov/bids",
			pgxmock.AnyArg(), "pending", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("existing-id"))

	link := &model.ProcurementLink{State: "Texas", Capital: "Austin", ProcurementLink: "https://texas.gov/bids"}
	id, err := s.UpsertProcurementLink(context.Background(), link)
	require.NoError(t, err)
	assert.Equal(t, "existing-id", id)
	assert.Equal(t, "existing-id", link.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertProcurementLinks(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"procurement_links"}, []string{
		"id", "state", "capital", "official_website", "procurement_link",
		"requires_registration", "status", "created_at", "updated_at",
	}).WillReturnResult(2)

	n, err := s.InsertProcurementLinks(context.Background(), []model.ProcurementLink{
		{State: "Ohio", ProcurementLink: "https://ohio.gov/bids"},
		{State: "Utah", ProcurementLink: "https://utah.gov/bids"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetProcurementLinkStatus_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE procurement_links SET status = \$2`).
		WithArgs("missing", "invalid", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.SetProcurementLinkStatus(context.Background(), "missing", model.LinkStatusInvalid)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListProcurementLinks(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()
	yes := true

	mock.ExpectQuery(`FROM procurement_links WHERE status = \$1`).
		WithArgs("approved").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "state", "capital", "official_website", "procurement_link",
			"requires_registration", "status", "created_at", "updated_at",
		}).AddRow("p1", "Texas", "Austin", "https://texas.gov", "https://texas.gov/bids", &yes, "approved", now, now))

	links, err := s.ListProcurementLinks(context.Background(), model.LinkStatusApproved)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, model.LinkStatusApproved, links[0].Status)
	require.NotNil(t, links[0].RequiresRegistration)
	assert.True(t, *links[0].RequiresRegistration)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Close_NoPool(t *testing.T) {
	s, _ := newMockPostgresStore(t)
	assert.NoError(t, s.Close())
}
