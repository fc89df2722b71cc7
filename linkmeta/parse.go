package linkmeta

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

type page struct {
	title       string
	description string
	imageURL    string

	docTitle string
	firstImg string
}

// parsePage extracts Open Graph metadata with <title> and the first <img>
// as fallbacks. html.Parse repairs the malformed HTML real pages serve, and
// the walk runs over the resulting node tree.
func parsePage(body []byte) page {
	var p page
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return p
	}
	walk(doc, &p)

	if p.title == "" {
		p.title = p.docTitle
	}
	if p.imageURL == "" {
		p.imageURL = p.firstImg
	}
	return p
}

func walk(n *html.Node, p *page) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "meta":
			prop := strings.ToLower(attr(n, "property"))
			if prop == "" {
				prop = strings.ToLower(attr(n, "name"))
			}
			content := strings.TrimSpace(attr(n, "content"))
			switch prop {
			case "og:title":
				if p.title == "" {
					p.title = content
				}
			case "og:description", "description":
				if p.description == "" {
					p.description = content
				}
			case "og:image":
				if p.imageURL == "" {
					p.imageURL = content
				}
			}
		case "title":
			if p.docTitle == "" {
				p.docTitle = strings.TrimSpace(textContent(n))
			}
		case "img":
			if p.firstImg == "" {
				p.firstImg = strings.TrimSpace(attr(n, "src"))
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, p)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}
