package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/pagenote/internal/model"
	appErr "github.com/xxxsen/pagenote/internal/pkg/errors"
)

func newMockRepo(t *testing.T) (*NotebookRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewNotebookRepo(db), mock
}

func notebookRows() *sqlmock.Rows {
	return sqlmock.NewRows(notebookColumns)
}

func TestNotebookRepoCreate(t *testing.T) {
	r, mock := newMockRepo(t)
	mock.ExpectExec("INSERT INTO notebooks").WillReturnResult(sqlmock.NewResult(0, 1))

	err := r.Create(context.Background(), &model.Notebook{
		ID:     "nb-1",
		UserID: "user-1",
		Title:  model.DefaultNotebookTitle,
		Pages:  []model.Page{{ID: "p1", Order: 0}},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotebookRepoGetByIDDecodesJSONColumns(t *testing.T) {
	r, mock := newMockRepo(t)
	mock.ExpectQuery("SELECT (.+) FROM notebooks").
		WillReturnRows(notebookRows().AddRow(
			"nb-1", "user-1", "t", "snip", 1, `["a","b"]`,
			`[{"id":"p1","title":"Page 1","content_key":"notes/nb-1/pages/p1.html","order":0}]`,
			int64(100), int64(200),
		))

	nb, err := r.GetByID(context.Background(), "user-1", "nb-1")
	require.NoError(t, err)
	require.True(t, nb.IsFavorite)
	require.Equal(t, []string{"a", "b"}, nb.Tags)
	require.Len(t, nb.Pages, 1)
	require.Equal(t, "Page 1", nb.Pages[0].Title)
	require.Equal(t, int64(200), nb.LastEditedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotebookRepoGetByIDForeignOwner(t *testing.T) {
	r, mock := newMockRepo(t)
	mock.ExpectQuery("SELECT (.+) FROM notebooks").WillReturnRows(notebookRows())
	mock.ExpectQuery("SELECT user_id FROM notebooks").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("user-a"))

	_, err := r.GetByID(context.Background(), "user-b", "nb-1")
	require.ErrorIs(t, err, appErr.ErrForbidden)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotebookRepoGetByIDMissing(t *testing.T) {
	r, mock := newMockRepo(t)
	mock.ExpectQuery("SELECT (.+) FROM notebooks").WillReturnRows(notebookRows())
	mock.ExpectQuery("SELECT user_id FROM notebooks").WillReturnRows(sqlmock.NewRows([]string{"user_id"}))

	_, err := r.GetByID(context.Background(), "user-b", "nb-404")
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestNotebookRepoUpdateForeignOwnerIsForbidden(t *testing.T) {
	r, mock := newMockRepo(t)
	mock.ExpectExec("UPDATE notebooks").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT user_id FROM notebooks").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("user-a"))

	title := "hijacked"
	err := r.Update(context.Background(), "user-b", "nb-1", model.NotebookPatch{Title: &title}, 1)
	require.ErrorIs(t, err, appErr.ErrForbidden)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotebookRepoUpdateOnlyTouchesPatchedColumns(t *testing.T) {
	r, mock := newMockRepo(t)
	// mtime, snippet, then the two where args
	mock.ExpectExec("UPDATE notebooks SET (.+) WHERE").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	snippet := "hello"
	err := r.Update(context.Background(), "user-a", "nb-1", model.NotebookPatch{Snippet: &snippet}, 1)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotebookRepoDeletePropagatesDBError(t *testing.T) {
	r, mock := newMockRepo(t)
	boom := errors.New("boom")
	mock.ExpectExec("DELETE FROM notebooks").WillReturnError(boom)

	err := r.Delete(context.Background(), "user-a", "nb-1")
	require.ErrorIs(t, err, boom)
}

func TestNotebookRepoListByUser(t *testing.T) {
	r, mock := newMockRepo(t)
	mock.ExpectQuery("SELECT (.+) FROM notebooks (.+) ORDER BY mtime desc").
		WillReturnRows(notebookRows().
			AddRow("nb-2", "user-a", "b", "", 0, "[]", "[]", int64(1), int64(20)).
			AddRow("nb-1", "user-a", "a", "", 0, "", "", int64(1), int64(10)))

	items, err := r.ListByUser(context.Background(), "user-a")
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "nb-2", items[0].ID)
	require.NotNil(t, items[1].Tags)
	require.NotNil(t, items[1].Pages)
}
