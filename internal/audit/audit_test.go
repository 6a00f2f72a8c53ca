package audit_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/novaline-edu/enrollgate/internal/audit"
)

func TestSlogService_Log_WritesAuditTrailMarkerAndFields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	svc := audit.NewSlogService(logger)

	svc.Log(context.Background(), 42, audit.EventLoginSuccess, map[string]any{"username": "alice"})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	require.Equal(t, "audit_trail", entry["log_type"])
	require.Equal(t, float64(42), entry["actor_id"])
	require.Equal(t, string(audit.EventLoginSuccess), entry["event"])
	require.Equal(t, "alice", entry["meta_username"])
}

func TestNoopService_Log_NeverPanics(t *testing.T) {
	svc := audit.NoopService{}
	svc.Log(context.Background(), 1, audit.EventLogout, nil)
}
