package service

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/pagenote/internal/contentstore"
	"github.com/xxxsen/pagenote/internal/model"
	appErr "github.com/xxxsen/pagenote/internal/pkg/errors"
	"github.com/xxxsen/pagenote/internal/repo"
)

func TestCreateStartsWithOneDefaultPage(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("INSERT INTO notebooks").WillReturnResult(sqlmock.NewResult(0, 1))
	svc := NewNotebookService(repo.NewNotebookRepo(db), nil)

	nb, err := svc.Create(context.Background(), "u1", "  ")
	require.NoError(t, err)
	require.Equal(t, model.DefaultNotebookTitle, nb.Title)
	require.False(t, nb.IsFavorite)
	require.Empty(t, nb.Tags)
	require.Empty(t, nb.Snippet)
	require.Len(t, nb.Pages, 1)
	require.Equal(t, 0, nb.Pages[0].Order)
	require.Equal(t, "Page 1", nb.Pages[0].Title)
	require.Equal(t, model.PageContentKey(nb.ID, nb.Pages[0].ID), nb.Pages[0].ContentKey)
	require.Equal(t, nb.CreatedAt, nb.LastEditedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateForeignNotebookIsForbidden(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT (.+) FROM notebooks").WillReturnRows(sqlmock.NewRows(testNotebookColumns))
	mock.ExpectQuery("SELECT user_id FROM notebooks").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("owner-a"))
	svc := NewNotebookService(repo.NewNotebookRepo(db), nil)

	title := "stolen"
	_, err := svc.Update(context.Background(), "owner-b", "nb-1", model.NotebookPatch{Title: &title})
	require.ErrorIs(t, err, appErr.ErrForbidden)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRejectsInvalidPages(t *testing.T) {
	db, _ := newMockDB(t)
	svc := NewNotebookService(repo.NewNotebookRepo(db), nil)
	ctx := context.Background()

	tests := []struct {
		name  string
		pages []model.Page
	}{
		{name: "empty", pages: []model.Page{}},
		{name: "duplicate id", pages: []model.Page{{ID: "a", Order: 0}, {ID: "a", Order: 1}}},
		{name: "duplicate order", pages: []model.Page{{ID: "a", Order: 0}, {ID: "b", Order: 0}}},
		{name: "path in id", pages: []model.Page{{ID: "../x", Order: 0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pages := tt.pages
			_, err := svc.Update(ctx, "u1", "nb-1", model.NotebookPatch{Pages: &pages})
			require.ErrorIs(t, err, appErr.ErrInvalid)
		})
	}
	_, err := svc.Update(ctx, "u1", "nb-1", model.NotebookPatch{})
	require.ErrorIs(t, err, appErr.ErrInvalid)
}

func TestUpdateNormalizesAndDropsRemovedPageBodies(t *testing.T) {
	db, mock := newMockDB(t)
	store := newTestStore(t)
	ctx := context.Background()
	putBlob(t, store, contentstore.PageKey("u1", "nb-1", "p1"), "<p>one</p>")
	putBlob(t, store, contentstore.PageKey("u1", "nb-1", "p2"), "<p>two</p>")

	mock.ExpectQuery("SELECT (.+) FROM notebooks").WillReturnRows(notebookRow("nb-1", "u1",
		`[{"id":"p1","content_key":"notes/nb-1/pages/p1.html","order":0},{"id":"p2","content_key":"notes/nb-1/pages/p2.html","order":1}]`))
	mock.ExpectExec("UPDATE notebooks").WillReturnResult(sqlmock.NewResult(0, 1))
	svc := NewNotebookService(repo.NewNotebookRepo(db), store)

	pages := []model.Page{{ID: "p1", Title: "Intro", ContentKey: "bogus", Order: 0}}
	tags := []string{"x", " x", "", "y"}
	nb, err := svc.Update(ctx, "u1", "nb-1", model.NotebookPatch{Pages: &pages, Tags: &tags})
	require.NoError(t, err)
	require.Equal(t, []string{"x", "y"}, nb.Tags)
	require.Len(t, nb.Pages, 1)
	require.Equal(t, "notes/nb-1/pages/p1.html", nb.Pages[0].ContentKey)
	require.Greater(t, nb.LastEditedAt, int64(2))

	_, err = store.Get(ctx, contentstore.PageKey("u1", "nb-1", "p2"))
	require.ErrorIs(t, err, appErr.ErrNotFound)
	rc, err := store.Get(ctx, contentstore.PageKey("u1", "nb-1", "p1"))
	require.NoError(t, err)
	_ = rc.Close()
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteRemovesBodies(t *testing.T) {
	db, mock := newMockDB(t)
	store := newTestStore(t)
	ctx := context.Background()
	putBlob(t, store, contentstore.PageKey("u1", "nb-1", "p1"), "<p>one</p>")

	mock.ExpectQuery("SELECT (.+) FROM notebooks").WillReturnRows(notebookRow("nb-1", "u1", `[{"id":"p1","order":0}]`))
	mock.ExpectExec("DELETE FROM notebooks").WillReturnResult(sqlmock.NewResult(0, 1))
	svc := NewNotebookService(repo.NewNotebookRepo(db), store)

	require.NoError(t, svc.Delete(ctx, "u1", "nb-1"))
	objects, err := store.List(ctx, contentstore.NotebookPrefix("u1", "nb-1"))
	require.NoError(t, err)
	require.Empty(t, objects)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNormalizeTags(t *testing.T) {
	require.Equal(t, []string{"b", "a"}, NormalizeTags([]string{"b", "a", "b", "  "}))
	require.Empty(t, NormalizeTags(nil))
}
