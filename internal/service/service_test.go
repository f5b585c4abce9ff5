package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/pagenote/internal/config"
	"github.com/xxxsen/pagenote/internal/contentstore"
)

var testNotebookColumns = []string{"id", "user_id", "title", "snippet", "is_favorite", "tags", "pages", "ctime", "mtime"}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func newTestStore(t *testing.T) contentstore.Store {
	t.Helper()
	store, err := contentstore.New(config.ContentStoreConfig{
		Type: "local",
		Local: config.LocalStoreConfig{
			Dir:     t.TempDir(),
			BaseURL: "http://notes.local",
			Secret:  "blob-secret",
		},
	})
	require.NoError(t, err)
	return store
}

func putBlob(t *testing.T, store contentstore.Store, key, body string) {
	t.Helper()
	r := strings.NewReader(body)
	require.NoError(t, store.Put(context.Background(), key, r, r.Size(), "text/html"))
}

func notebookRow(id, owner, pages string) *sqlmock.Rows {
	return sqlmock.NewRows(testNotebookColumns).
		AddRow(id, owner, "Trip", "", 0, `[]`, pages, int64(1), int64(2))
}
