package contentstore

import (
	"context"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/pagenote/internal/config"
	appErr "github.com/xxxsen/pagenote/internal/pkg/errors"
)

func newLocal(t *testing.T) *localStore {
	t.Helper()
	store, err := New(config.ContentStoreConfig{
		Type: "local",
		Local: config.LocalStoreConfig{
			Dir:     t.TempDir(),
			BaseURL: "http://notes.local/",
			Secret:  "secret",
		},
	})
	require.NoError(t, err)
	return store.(*localStore)
}

func TestLocalStorePutGetDelete(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()
	key := PageKey("u1", "nb1", "p1")

	_, err := s.Get(ctx, key)
	require.ErrorIs(t, err, appErr.ErrNotFound)

	body := strings.NewReader("<p>hello</p>")
	require.NoError(t, s.Put(ctx, key, body, body.Size(), "text/html"))

	rc, err := s.Get(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	require.Equal(t, "<p>hello</p>", string(data))

	objects, err := s.List(ctx, NotebookPrefix("u1", "nb1"))
	require.NoError(t, err)
	require.Len(t, objects, 1)
	require.Equal(t, key, objects[0].Key)

	require.NoError(t, s.Delete(ctx, key))
	require.NoError(t, s.Delete(ctx, key))
	_, err = s.Get(ctx, key)
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestLocalStoreRejectsTraversal(t *testing.T) {
	s := newLocal(t)
	body := strings.NewReader("x")
	require.ErrorIs(t, s.Put(context.Background(), "../escape", body, 1, ""), appErr.ErrInvalid)
}

func TestLocalStoreListMissingPrefix(t *testing.T) {
	s := newLocal(t)
	objects, err := s.List(context.Background(), "backups/")
	require.NoError(t, err)
	require.Empty(t, objects)
}

func TestLocalStoreSignedURLAuthorizesOneMethod(t *testing.T) {
	s := newLocal(t)
	key := PageKey("u1", "nb1", "p1")
	raw, err := s.PresignPut(context.Background(), key, "text/html", time.Minute)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "notes.local", u.Host)
	require.Equal(t, BlobRoute+key, u.Path)
	token := u.Query().Get("token")

	require.NoError(t, s.Authorize(token, "PUT", key))
	require.ErrorIs(t, s.Authorize(token, "GET", key), appErr.ErrForbidden)
	require.ErrorIs(t, s.Authorize(token, "PUT", PageKey("u2", "nb1", "p1")), appErr.ErrForbidden)
	require.ErrorIs(t, s.Authorize("", "PUT", key), appErr.ErrUnauthorized)
	require.Equal(t, "http://notes.local"+BlobRoute+"assets/x.png", s.PublicURL("assets/x.png"))
}
