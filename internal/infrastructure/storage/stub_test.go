package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollup/backend/internal/domain/consolidation"
	"github.com/rollup/backend/internal/domain/shared"
)

func TestStubArchiveStorage(t *testing.T) {
	ctx := context.Background()
	stub := NewStubArchiveStorage()

	orgID := uuid.New()
	runID := uuid.New()
	output := &consolidation.ConsolidationOutput{
		RunID: runID,
		Stats: consolidation.RunStats{FactsWritten: 3},
	}

	t.Run("archives under the canonical key", func(t *testing.T) {
		require.NoError(t, stub.ArchiveRunOutput(ctx, orgID, "2024-01", output))

		got, ok := stub.Get(ArchiveKey(orgID, "2024-01", runID))
		require.True(t, ok)
		assert.Equal(t, 3, got.Stats.FactsWritten)
		assert.Equal(t, 1, stub.Size())
	})

	t.Run("rejects a nil output", func(t *testing.T) {
		assert.Error(t, stub.ArchiveRunOutput(ctx, orgID, "2024-01", nil))
	})

	t.Run("signs a pseudo-URL for an archived output", func(t *testing.T) {
		url, expiresAt, err := stub.DownloadURL(ctx, orgID, "2024-01", runID, 0)
		require.NoError(t, err)
		assert.Equal(t, "memory://"+ArchiveKey(orgID, "2024-01", runID), url)
		assert.True(t, expiresAt.After(time.Now()))
	})

	t.Run("download of an unknown run is not found", func(t *testing.T) {
		_, _, err := stub.DownloadURL(ctx, orgID, "2024-01", uuid.New(), 0)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("re-archiving the same run overwrites", func(t *testing.T) {
		updated := &consolidation.ConsolidationOutput{
			RunID: runID,
			Stats: consolidation.RunStats{FactsWritten: 5},
		}
		require.NoError(t, stub.ArchiveRunOutput(ctx, orgID, "2024-01", updated))

		got, ok := stub.Get(ArchiveKey(orgID, "2024-01", runID))
		require.True(t, ok)
		assert.Equal(t, 5, got.Stats.FactsWritten)
		assert.Equal(t, 1, stub.Size())
	})
}

func TestArchiveKey(t *testing.T) {
	orgID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	runID := uuid.MustParse("22222222-2222-2222-2222-222222222222")

	key := ArchiveKey(orgID, "2024-06", runID)
	assert.Equal(t, "runs/11111111-1111-1111-1111-111111111111/2024-06/22222222-2222-2222-2222-222222222222.json", key)
}
