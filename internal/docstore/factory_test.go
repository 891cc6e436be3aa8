package docstore

import (
	"context"
	"testing"

	"parent-wellness/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewStore_MemoryWarnsSingleProcess(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	cfg := &config.Config{}
	cfg.CloudStore.Backend = "memory"

	s, err := NewStore(context.Background(), cfg, zap.New(core))
	require.NoError(t, err)
	defer s.Close()
	assert.IsType(t, &MemoryStore{}, s)

	entries := logs.FilterMessage("Cloud store: memory, single-process only").All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].ContextMap()["detail"], "not shared")
}

func TestNewStore_UnknownBackend(t *testing.T) {
	cfg := &config.Config{}
	cfg.CloudStore.Backend = "firestore"

	_, err := NewStore(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}
