package editor

import "github.com/xxxsen/pagenote/internal/htmltext"

// Buffer is the editable HTML of the open page. It is not safe for
// concurrent use; Session guards it.
type Buffer struct {
	html string
}

func (b *Buffer) Set(html string) {
	b.html = html
}

func (b *Buffer) HTML() string {
	return b.html
}

func (b *Buffer) Text() string {
	return htmltext.PlainText(b.html)
}

func (b *Buffer) Outline() ([]htmltext.Heading, error) {
	return htmltext.Outline(b.html)
}
