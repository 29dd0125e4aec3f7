package wordpress

import (
	"bytes"

	"github.com/yuin/goldmark"
)

// RenderHTML converts markdown to the HTML WordPress stores as post content.
// Falls back to the raw markdown if conversion fails; WordPress renders plain
// text acceptably and losing the body would be worse.
func RenderHTML(markdown string) string {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(markdown), &buf); err != nil {
		return markdown
	}
	return buf.String()
}
