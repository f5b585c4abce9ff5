package state

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/pagenote/internal/model"
	appErr "github.com/xxxsen/pagenote/internal/pkg/errors"
	"github.com/xxxsen/pagenote/internal/state/statetest"
)

func newContainer(t *testing.T) (*Container, *statetest.Remote) {
	t.Helper()
	remote := statetest.NewRemote()
	return New(remote), remote
}

func seedNotebook(remote *statetest.Remote, id string, pageIDs ...string) model.Notebook {
	nb := model.Notebook{ID: id, Title: "nb " + id, Tags: []string{}}
	for i, pid := range pageIDs {
		nb.Pages = append(nb.Pages, model.Page{ID: pid, ContentKey: model.PageContentKey(id, pid), Order: i})
	}
	remote.Seed(nb)
	return nb
}

func TestCreateAppliesDefaultsAndPrepends(t *testing.T) {
	c, _ := newContainer(t)
	ctx := context.Background()

	first, err := c.Create(ctx, "")
	require.NoError(t, err)
	second, err := c.Create(ctx, "Second")
	require.NoError(t, err)

	list := c.Notebooks()
	require.Len(t, list, 2)
	require.Equal(t, second, list[0].ID)
	require.Equal(t, first, list[1].ID)
	require.Equal(t, model.DefaultNotebookTitle, list[1].Title)
	require.False(t, list[1].IsFavorite)
	require.Empty(t, list[1].Tags)
	require.GreaterOrEqual(t, len(list[1].Pages), 1)
}

func TestCreateFailureIsCreationError(t *testing.T) {
	c, remote := newContainer(t)
	remote.FailCreate = errors.New("boom")

	_, err := c.Create(context.Background(), "x")
	require.ErrorIs(t, err, appErr.ErrCreateFailed)
	require.Empty(t, c.Notebooks())
}

func TestSaveThenLoadAfterCacheCleared(t *testing.T) {
	c, remote := newContainer(t)
	ctx := context.Background()
	seedNotebook(remote, "nb", "p1")
	_, err := c.FetchAll(ctx)
	require.NoError(t, err)

	html := "<h1>Title</h1><p>Body &amp; more</p>"
	require.NoError(t, c.SaveContent(ctx, "nb", html, "p1"))

	_, err = c.Refresh(ctx)
	require.NoError(t, err)
	_, cached := c.CachedContent("nb", "p1")
	require.False(t, cached)

	require.Equal(t, html, c.LoadContent(ctx, "nb", "p1"))
	stored, ok := remote.Stored("nb")
	require.True(t, ok)
	require.Equal(t, "Title Body & more", stored.Snippet)
	require.Equal(t, "Title Body & more", c.Notebooks()[0].Snippet)
}

func TestSaveUploadFailureAbortsWithoutCaching(t *testing.T) {
	c, remote := newContainer(t)
	ctx := context.Background()
	seedNotebook(remote, "nb", "p1")
	_, err := c.FetchAll(ctx)
	require.NoError(t, err)
	remote.FailPut = errors.New("s3 down")

	err = c.SaveContent(ctx, "nb", "<p>x</p>", "p1")
	require.ErrorIs(t, err, appErr.ErrSaveFailed)
	_, cached := c.CachedContent("nb", "p1")
	require.False(t, cached)
	require.Zero(t, remote.Calls("UpdateNotebook"))
}

func TestSaveCachesBodyWhenSnippetUpdateFails(t *testing.T) {
	c, remote := newContainer(t)
	ctx := context.Background()
	seedNotebook(remote, "nb", "p1")
	_, err := c.FetchAll(ctx)
	require.NoError(t, err)
	remote.FailUpdate = errors.New("db down")

	err = c.SaveContent(ctx, "nb", "<p>x</p>", "p1")
	require.ErrorIs(t, err, appErr.ErrSaveFailed)
	body, cached := c.CachedContent("nb", "p1")
	require.True(t, cached)
	require.Equal(t, "<p>x</p>", body)
}

func TestLoadContentMissingBlobIsCachedEmpty(t *testing.T) {
	c, remote := newContainer(t)
	ctx := context.Background()
	seedNotebook(remote, "nb", "p1")

	require.Equal(t, "", c.LoadContent(ctx, "nb", "p1"))
	body, cached := c.CachedContent("nb", "p1")
	require.True(t, cached)
	require.Empty(t, body)
	require.Equal(t, "", c.LoadContent(ctx, "nb", "p1"))
	require.Equal(t, 1, remote.Calls("GetBlob"))
}

func TestLoadContentTransportFailureIsNotCached(t *testing.T) {
	c, remote := newContainer(t)
	ctx := context.Background()
	seedNotebook(remote, "nb", "p1")
	remote.SetBlob("nb", "p1", "<p>later</p>")
	remote.FailGetBlob = errors.New("connection reset")

	require.Equal(t, "", c.LoadContent(ctx, "nb", "p1"))
	_, cached := c.CachedContent("nb", "p1")
	require.False(t, cached)

	remote.FailGetBlob = nil
	require.Equal(t, "<p>later</p>", c.LoadContent(ctx, "nb", "p1"))
}

func TestLoadContentServerErrorIsNotCached(t *testing.T) {
	for _, status := range []int{http.StatusInternalServerError, http.StatusForbidden} {
		c, remote := newContainer(t)
		ctx := context.Background()
		seedNotebook(remote, "nb", "p1")
		remote.SetBlob("nb", "p1", "<p>kept</p>")
		remote.FailGetBlob = &statetest.StatusError{Status: status}

		require.Equal(t, "", c.LoadContent(ctx, "nb", "p1"))
		_, cached := c.CachedContent("nb", "p1")
		require.False(t, cached, "status %d", status)

		remote.FailGetBlob = nil
		require.Equal(t, "<p>kept</p>", c.LoadContent(ctx, "nb", "p1"))
	}
}

func TestLoadContentURLFailureReturnsEmpty(t *testing.T) {
	c, remote := newContainer(t)
	remote.FailURL = errors.New("no url")
	require.Equal(t, "", c.LoadContent(context.Background(), "nb", "p1"))
	_, cached := c.CachedContent("nb", "p1")
	require.False(t, cached)
}

func TestToggleFavoriteTwiceRestores(t *testing.T) {
	c, remote := newContainer(t)
	ctx := context.Background()
	seedNotebook(remote, "nb", "p1")
	_, err := c.FetchAll(ctx)
	require.NoError(t, err)

	v, err := c.ToggleFavorite(ctx, "nb")
	require.NoError(t, err)
	require.True(t, v)
	v, err = c.ToggleFavorite(ctx, "nb")
	require.NoError(t, err)
	require.False(t, v)
	require.False(t, c.Notebooks()[0].IsFavorite)
	stored, _ := remote.Stored("nb")
	require.False(t, stored.IsFavorite)
}

func TestToggleFavoriteRollsBackOnFailure(t *testing.T) {
	c, remote := newContainer(t)
	ctx := context.Background()
	seedNotebook(remote, "nb", "p1")
	_, err := c.FetchAll(ctx)
	require.NoError(t, err)
	remote.FailUpdate = errors.New("boom")

	v, err := c.ToggleFavorite(ctx, "nb")
	require.ErrorIs(t, err, appErr.ErrSaveFailed)
	require.False(t, v)
	require.False(t, c.Notebooks()[0].IsFavorite)
}

func TestSoftFieldsSurviveRemoteFailure(t *testing.T) {
	c, remote := newContainer(t)
	ctx := context.Background()
	seedNotebook(remote, "nb", "p1")
	_, err := c.FetchAll(ctx)
	require.NoError(t, err)
	before := c.Notebooks()[0].LastEditedAt
	remote.FailUpdate = errors.New("boom")

	title := "Renamed"
	err = c.Update(ctx, "nb", model.NotebookPatch{Title: &title})
	require.ErrorIs(t, err, appErr.ErrSaveFailed)
	nb := c.Notebooks()[0]
	require.Equal(t, "Renamed", nb.Title)
	require.Greater(t, nb.LastEditedAt, before)
}

func TestCachedReadMakesNoRemoteCalls(t *testing.T) {
	c, remote := newContainer(t)
	ctx := context.Background()
	seedNotebook(remote, "nb", "p1", "p2")
	remote.SetBlob("nb", "p1", "<p>a</p>")
	_, err := c.FetchAll(ctx)
	require.NoError(t, err)
	c.LoadContent(ctx, "nb", "p1")
	c.LoadContent(ctx, "nb", "p2")

	calls := remote.TotalCalls()
	nb, err := c.GetOne(ctx, "nb")
	require.NoError(t, err)
	require.Len(t, nb.Pages, 2)
	require.Equal(t, "<p>a</p>", c.LoadContent(ctx, "nb", "p1"))
	require.Equal(t, calls, remote.TotalCalls())
}

func TestGetOnePropagatesOwnershipErrors(t *testing.T) {
	c, remote := newContainer(t)
	remote.SeedForeign("theirs")

	_, err := c.GetOne(context.Background(), "theirs")
	require.ErrorIs(t, err, appErr.ErrForbidden)
	_, err = c.GetOne(context.Background(), "missing")
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestDeleteThenListExcludes(t *testing.T) {
	c, remote := newContainer(t)
	ctx := context.Background()
	seedNotebook(remote, "a", "p1")
	seedNotebook(remote, "b", "p1")
	_, err := c.FetchAll(ctx)
	require.NoError(t, err)
	c.LoadContent(ctx, "a", "p1")

	require.NoError(t, c.Delete(ctx, "a"))
	_, cached := c.CachedContent("a", "p1")
	require.False(t, cached)
	list, err := c.FetchAll(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "b", list[0].ID)
}

func TestDeleteRemoteFailureIsNotRolledBack(t *testing.T) {
	c, remote := newContainer(t)
	ctx := context.Background()
	seedNotebook(remote, "a", "p1")
	_, err := c.FetchAll(ctx)
	require.NoError(t, err)
	remote.FailDelete = errors.New("boom")

	require.Error(t, c.Delete(ctx, "a"))
	require.Empty(t, c.Notebooks())
}

func TestAddPageUsesNextOrder(t *testing.T) {
	c, remote := newContainer(t)
	ctx := context.Background()
	nb := seedNotebook(remote, "nb", "p1", "p2")
	nb.Pages[1].Order = 7
	remote.Seed(nb)
	_, err := c.FetchAll(ctx)
	require.NoError(t, err)

	pageID, err := c.AddPage(ctx, "nb")
	require.NoError(t, err)
	got, err := c.GetOne(ctx, "nb")
	require.NoError(t, err)
	page, ok := got.FindPage(pageID)
	require.True(t, ok)
	require.Equal(t, 8, page.Order)
	require.Equal(t, "Page 3", page.Title)
	require.Equal(t, model.PageContentKey("nb", pageID), page.ContentKey)
}

func TestAddPageAfterDeleteSkipsTakenTitle(t *testing.T) {
	c, remote := newContainer(t)
	ctx := context.Background()
	nb := seedNotebook(remote, "nb", "p1", "p2", "p3")
	for i := range nb.Pages {
		nb.Pages[i].Title = fmt.Sprintf("Page %d", i+1)
	}
	remote.Seed(nb)
	_, err := c.FetchAll(ctx)
	require.NoError(t, err)

	require.NoError(t, c.DeletePage(ctx, "nb", "p2"))
	pageID, err := c.AddPage(ctx, "nb")
	require.NoError(t, err)
	got, err := c.Lookup(ctx, "nb")
	require.NoError(t, err)
	page, ok := got.FindPage(pageID)
	require.True(t, ok)
	require.Equal(t, "Page 4", page.Title)
}

func TestDeleteOnlyPageIsRejected(t *testing.T) {
	c, remote := newContainer(t)
	ctx := context.Background()
	seedNotebook(remote, "nb", "p1")
	_, err := c.FetchAll(ctx)
	require.NoError(t, err)

	err = c.DeletePage(ctx, "nb", "p1")
	require.ErrorIs(t, err, appErr.ErrInvalid)
	require.Zero(t, remote.Calls("UpdateNotebook"))
}

func TestDeletePageAndRename(t *testing.T) {
	c, remote := newContainer(t)
	ctx := context.Background()
	seedNotebook(remote, "nb", "p1", "p2")
	_, err := c.FetchAll(ctx)
	require.NoError(t, err)

	require.NoError(t, c.RenamePage(ctx, "nb", "p2", " Notes "))
	require.NoError(t, c.DeletePage(ctx, "nb", "p1"))
	stored, _ := remote.Stored("nb")
	require.Len(t, stored.Pages, 1)
	require.Equal(t, "Notes", stored.Pages[0].Title)
	require.ErrorIs(t, c.RenamePage(ctx, "nb", "p1", "x"), appErr.ErrNotFound)
}

func TestUploadAssetStripsSignature(t *testing.T) {
	c, remote := newContainer(t)
	u, err := c.UploadAsset(context.Background(), "cat.png", "image/png", []byte("png"))
	require.NoError(t, err)
	require.Equal(t, "mem://assets/cat.png", u)
	require.Equal(t, 1, remote.Calls("PutBlob"))
}

func TestLookupPrefersLocalCopy(t *testing.T) {
	c, remote := newContainer(t)
	ctx := context.Background()
	seedNotebook(remote, "nb", "p1")

	nb, err := c.Lookup(ctx, "nb")
	require.NoError(t, err)
	require.Equal(t, "nb", nb.ID)
	require.Equal(t, 1, remote.Calls("GetNotebook"))

	_, err = c.Lookup(ctx, "nb")
	require.NoError(t, err)
	require.Equal(t, 1, remote.Calls("GetNotebook"))
}
