// Package storage provides object storage implementations for run output
// archiving.
package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	consolapp "github.com/rollup/backend/internal/application/consolidation"
	"github.com/rollup/backend/internal/domain/consolidation"
	"github.com/rollup/backend/internal/domain/shared"
)

// StubArchiveStorage is an in-memory placeholder implementation of
// OutputArchiver. Use this for development until a real storage backend
// (S3, MinIO, etc.) is configured.
type StubArchiveStorage struct {
	mu      sync.Mutex
	outputs map[string]*consolidation.ConsolidationOutput
}

// NewStubArchiveStorage creates a new StubArchiveStorage
func NewStubArchiveStorage() *StubArchiveStorage {
	return &StubArchiveStorage{
		outputs: make(map[string]*consolidation.ConsolidationOutput),
	}
}

// Ensure StubArchiveStorage implements OutputArchiver and ArchiveURLSigner
var (
	_ consolapp.OutputArchiver   = (*StubArchiveStorage)(nil)
	_ consolapp.ArchiveURLSigner = (*StubArchiveStorage)(nil)
)

// ArchiveRunOutput keeps the output in memory under the canonical key
func (s *StubArchiveStorage) ArchiveRunOutput(ctx context.Context, orgID uuid.UUID, period string, output *consolidation.ConsolidationOutput) error {
	if output == nil {
		return errors.New("run output is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs[ArchiveKey(orgID, period, output.RunID)] = output
	return nil
}

// DownloadURL returns a memory:// pseudo-URL for an archived output. The
// expiration is nominal; nothing enforces it in-memory.
func (s *StubArchiveStorage) DownloadURL(_ context.Context, orgID uuid.UUID, period string, runID uuid.UUID, expiresIn time.Duration) (string, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ArchiveKey(orgID, period, runID)
	if _, ok := s.outputs[key]; !ok {
		return "", time.Time{}, shared.ErrNotFound
	}
	if expiresIn <= 0 {
		expiresIn = 15 * time.Minute
	}
	return "memory://" + key, time.Now().Add(expiresIn), nil
}

// Get returns an archived output by key (for testing/inspection)
func (s *StubArchiveStorage) Get(key string) (*consolidation.ConsolidationOutput, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out, ok := s.outputs[key]
	return out, ok
}

// Size returns the number of archived outputs (for testing/inspection)
func (s *StubArchiveStorage) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.outputs)
}
