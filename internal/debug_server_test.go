package internal

import (
	"chat-hub/repositories"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestDebugHandler_Renders_Records(t *testing.T) {
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	store := repositories.NewConversationRepository(db, slog.Default(), clockwork.NewRealClock(), nil)
	_, err = store.CreateGroup(context.Background(), "weekend plans", []string{"u2"}, "u1")
	req.NoError(err)

	handler := DebugHandler(db, func() map[string]any { return map[string]any{"Online": 3} })
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/inspect", nil))

	req.Equal(http.StatusOK, rec.Code)
	req.Contains(rec.Body.String(), "weekend plans: 2 participants, 0 messages")
	req.Contains(rec.Body.String(), "GROUP")
	req.Contains(rec.Body.String(), "Online")
}

func TestScan_Honors_Prefix(t *testing.T) {
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	store := repositories.NewConversationRepository(db, slog.Default(), clockwork.NewRealClock(), nil)
	_, _, err = store.GetOrCreateIndividual(context.Background(), "u1", "u2")
	req.NoError(err)

	records, err := Scan(db, "pair:")
	req.NoError(err)
	req.Len(records, 1)
	req.Equal("PAIR", records[0].Type)
}
