package generate

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

// StripMarkup removes stray HTML tags from generated prose and unescapes
// entities. Block-level tags become paragraph breaks. Text that contains no
// '<' is returned unchanged.
func StripMarkup(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				return strings.TrimSpace(b.String())
			}
			return s
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "p", "div", "h1", "h2", "h3", "h4", "h5", "h6", "blockquote":
				if tt == html.EndTagToken {
					b.WriteString("\n\n")
				}
			case "br":
				b.WriteString("\n")
			}
		}
	}
}
