package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/pagenote/internal/model"
	"github.com/xxxsen/pagenote/internal/pkg/dbutil"
	appErr "github.com/xxxsen/pagenote/internal/pkg/errors"
)

var notebookColumns = []string{"id", "user_id", "title", "snippet", "is_favorite", "tags", "pages", "ctime", "mtime"}

type NotebookRepo struct {
	db *sql.DB
}

func NewNotebookRepo(db *sql.DB) *NotebookRepo {
	return &NotebookRepo{db: db}
}

func (r *NotebookRepo) Create(ctx context.Context, nb *model.Notebook) error {
	tags, err := dbutil.EncodeJSON(nb.Tags)
	if err != nil {
		return err
	}
	pages, err := dbutil.EncodeJSON(nb.Pages)
	if err != nil {
		return err
	}
	data := map[string]interface{}{
		"id":          nb.ID,
		"user_id":     nb.UserID,
		"title":       nb.Title,
		"snippet":     nb.Snippet,
		"is_favorite": boolToInt(nb.IsFavorite),
		"tags":        tags,
		"pages":       pages,
		"ctime":       nb.CreatedAt,
		"mtime":       nb.LastEditedAt,
	}
	sqlStr, args, err := builder.BuildInsert("notebooks", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

func (r *NotebookRepo) GetByID(ctx context.Context, userID, notebookID string) (*model.Notebook, error) {
	where := map[string]interface{}{
		"id":      notebookID,
		"user_id": userID,
	}
	items, err := r.query(ctx, where)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, r.missError(ctx, notebookID)
	}
	return &items[0], nil
}

// ListByUser returns the owner's notebooks, most recently edited first.
func (r *NotebookRepo) ListByUser(ctx context.Context, userID string) ([]model.Notebook, error) {
	where := map[string]interface{}{
		"user_id":  userID,
		"_orderby": "mtime desc",
	}
	return r.query(ctx, where)
}

// ListAll is used by maintenance jobs only, never by request handlers.
func (r *NotebookRepo) ListAll(ctx context.Context) ([]model.Notebook, error) {
	return r.query(ctx, map[string]interface{}{"_orderby": "user_id asc, ctime asc"})
}

// Update applies the patch only when the record belongs to userID.
func (r *NotebookRepo) Update(ctx context.Context, userID, notebookID string, patch model.NotebookPatch, mtime int64) error {
	update := map[string]interface{}{
		"mtime": mtime,
	}
	if patch.Title != nil {
		update["title"] = *patch.Title
	}
	if patch.Snippet != nil {
		update["snippet"] = *patch.Snippet
	}
	if patch.IsFavorite != nil {
		update["is_favorite"] = boolToInt(*patch.IsFavorite)
	}
	if patch.Tags != nil {
		tags, err := dbutil.EncodeJSON(*patch.Tags)
		if err != nil {
			return err
		}
		update["tags"] = tags
	}
	if patch.Pages != nil {
		pages, err := dbutil.EncodeJSON(*patch.Pages)
		if err != nil {
			return err
		}
		update["pages"] = pages
	}
	where := map[string]interface{}{
		"id":      notebookID,
		"user_id": userID,
	}
	sqlStr, args, err := builder.BuildUpdate("notebooks", where, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return r.missError(ctx, notebookID)
	}
	return nil
}

func (r *NotebookRepo) Delete(ctx context.Context, userID, notebookID string) error {
	where := map[string]interface{}{
		"id":      notebookID,
		"user_id": userID,
	}
	sqlStr, args, err := builder.BuildDelete("notebooks", where)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return r.missError(ctx, notebookID)
	}
	return nil
}

// missError tells a foreign record (forbidden) apart from an absent one.
func (r *NotebookRepo) missError(ctx context.Context, notebookID string) error {
	sqlStr, args, err := builder.BuildSelect("notebooks", map[string]interface{}{"id": notebookID}, []string{"user_id"})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()
	if rows.Next() {
		return appErr.ErrForbidden
	}
	if err := rows.Err(); err != nil {
		return err
	}
	return appErr.ErrNotFound
}

func (r *NotebookRepo) query(ctx context.Context, where map[string]interface{}) ([]model.Notebook, error) {
	sqlStr, args, err := builder.BuildSelect("notebooks", where, notebookColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	items := make([]model.Notebook, 0)
	for rows.Next() {
		var (
			nb       model.Notebook
			favorite int
			tags     string
			pages    string
		)
		if err := rows.Scan(&nb.ID, &nb.UserID, &nb.Title, &nb.Snippet, &favorite, &tags, &pages, &nb.CreatedAt, &nb.LastEditedAt); err != nil {
			return nil, err
		}
		nb.IsFavorite = favorite != 0
		if err := dbutil.DecodeJSON(tags, &nb.Tags); err != nil {
			return nil, err
		}
		if err := dbutil.DecodeJSON(pages, &nb.Pages); err != nil {
			return nil, err
		}
		if nb.Tags == nil {
			nb.Tags = []string{}
		}
		if nb.Pages == nil {
			nb.Pages = []model.Page{}
		}
		items = append(items, nb)
	}
	return items, rows.Err()
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
