package postgres

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ordertx/internal/core/id"
	"ordertx/internal/domain/audit"
)

func TestAuditRepo_CompressesLargeChanges(t *testing.T) {
	repo, err := NewAuditRepo(nil, 64)
	require.NoError(t, err)
	defer repo.Close()

	large, err := json.Marshal(map[string]string{"note": strings.Repeat("x", 500)})
	require.NoError(t, err)
	entry := &audit.Entry{
		ID:         id.New(),
		EntityType: "order",
		EntityID:   id.New(),
		Action:     audit.ActionPlaceOrder,
		Outcome:    audit.OutcomeSuccess,
		ActorID:    "system",
		Changes:    large,
		CreatedAt:  time.Now().UTC(),
	}

	row := repo.encode(entry)
	assert.Equal(t, CompressionZstd, row.CompressionAlgo)
	assert.Nil(t, row.Changes)
	assert.Less(t, len(row.ChangesCompressed), len(large))

	back, err := repo.decode(&row)
	require.NoError(t, err)
	assert.JSONEq(t, string(large), string(back.Changes))
	assert.Equal(t, entry.EntityID, back.EntityID)
}

func TestAuditRepo_KeepsSmallChangesPlain(t *testing.T) {
	repo, err := NewAuditRepo(nil, 0)
	require.NoError(t, err)
	defer repo.Close()

	row := repo.encode(&audit.Entry{ID: id.New(), Changes: json.RawMessage(`{"delta":-2}`)})
	assert.Equal(t, CompressionNone, row.CompressionAlgo)
	assert.Nil(t, row.ChangesCompressed)
	assert.JSONEq(t, `{"delta":-2}`, string(row.Changes))
}

func TestAuditRepo_ColumnsMatchTable(t *testing.T) {
	repo, err := NewAuditRepo(nil, 0)
	require.NoError(t, err)
	defer repo.Close()

	assert.Equal(t, []string{
		"id", "entity_type", "entity_id", "action", "outcome", "actor_id",
		"changes", "changes_compressed", "compression_algo", "error", "created_at",
	}, repo.columns)
}
