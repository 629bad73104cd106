package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"finetunedb/internal/auth"
	"finetunedb/internal/config"
	"finetunedb/internal/storage"
	"finetunedb/internal/utils"
)

const testKey = "sk-server"

var testNow = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func newTestDeps(t *testing.T, projectID string) *Dependencies {
	t.Helper()

	keys, err := auth.NewKeyStore(auth.KeyStoreConfig{
		APIKey:    testKey,
		ProjectID: projectID,
		Cost:      bcrypt.MinCost,
	})
	require.NoError(t, err)

	db, err := storage.NewDB(context.Background(), config.DatabaseConfig{Driver: "sqlite3", URL: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &Dependencies{
		APIKeys: keys,
		DB:      db,
		Logs:    db.NewLogRepository(),
		Logger:  utils.NewLogger("server-test", utils.Critical),
		Now:     func() time.Time { return testNow },
	}
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+testKey)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}
