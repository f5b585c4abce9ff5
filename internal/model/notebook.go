package model

const DefaultNotebookTitle = "Untitled Document"

type Notebook struct {
	ID           string   `json:"id"`
	UserID       string   `json:"user_id,omitempty"`
	Title        string   `json:"title"`
	Snippet      string   `json:"snippet"`
	IsFavorite   bool     `json:"is_favorite"`
	Tags         []string `json:"tags"`
	Pages        []Page   `json:"pages"`
	CreatedAt    int64    `json:"created_at"`
	LastEditedAt int64    `json:"last_edited_at"`
}

type Page struct {
	ID         string `json:"id"`
	Title      string `json:"title,omitempty"`
	ContentKey string `json:"content_key"`
	Order      int    `json:"order"`
}

// NotebookPatch carries the fields of a partial update; nil means untouched.
type NotebookPatch struct {
	Title      *string   `json:"title,omitempty"`
	Snippet    *string   `json:"snippet,omitempty"`
	IsFavorite *bool     `json:"is_favorite,omitempty"`
	Tags       *[]string `json:"tags,omitempty"`
	Pages      *[]Page   `json:"pages,omitempty"`
}

func (p NotebookPatch) IsEmpty() bool {
	return p.Title == nil && p.Snippet == nil && p.IsFavorite == nil && p.Tags == nil && p.Pages == nil
}

// Apply merges the patch into nb. It does not touch LastEditedAt.
func (p NotebookPatch) Apply(nb *Notebook) {
	if p.Title != nil {
		nb.Title = *p.Title
	}
	if p.Snippet != nil {
		nb.Snippet = *p.Snippet
	}
	if p.IsFavorite != nil {
		nb.IsFavorite = *p.IsFavorite
	}
	if p.Tags != nil {
		nb.Tags = append([]string(nil), (*p.Tags)...)
	}
	if p.Pages != nil {
		nb.Pages = append([]Page(nil), (*p.Pages)...)
	}
}

// Clone returns a deep copy so callers can't alias cached slices.
func (nb *Notebook) Clone() *Notebook {
	if nb == nil {
		return nil
	}
	out := *nb
	out.Tags = append([]string(nil), nb.Tags...)
	out.Pages = append([]Page(nil), nb.Pages...)
	return &out
}

func (nb *Notebook) FindPage(pageID string) (Page, bool) {
	for _, p := range nb.Pages {
		if p.ID == pageID {
			return p, true
		}
	}
	return Page{}, false
}

func PageContentKey(notebookID, pageID string) string {
	return "notes/" + notebookID + "/pages/" + pageID + ".html"
}
