// Package extract turns raw HTML into the structured text the classifier
// consumes: title, meta description, headings, and visible body text, with
// boilerplate containers (nav, footer, scripts) stripped out.
package extract

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Page is the structured content of one fetched document.
type Page struct {
	Title           string
	MetaDescription string
	Headings        []string
	Text            string
}

// TextLen returns the rune length of the visible body text.
func (p *Page) TextLen() int {
	return utf8.RuneCountInString(p.Text)
}

// Weighted builds the classification text: title counted three times, meta
// description and headings twice, body text once. Repetition raises keyword
// frequency for terms in prominent positions.
func (p *Page) Weighted() string {
	var b strings.Builder
	for i := 0; i < 3; i++ {
		appendPart(&b, p.Title)
	}
	for i := 0; i < 2; i++ {
		appendPart(&b, p.MetaDescription)
	}
	for i := 0; i < 2; i++ {
		for _, h := range p.Headings {
			appendPart(&b, h)
		}
	}
	appendPart(&b, p.Text)
	return b.String()
}

func appendPart(b *strings.Builder, s string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return
	}
	if b.Len() > 0 {
		b.WriteByte(' ')
	}
	b.WriteString(s)
}

// Elements whose entire subtree is invisible or boilerplate.
var skipSubtree = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Nav:      true,
	atom.Footer:   true,
	atom.Header:   true,
	atom.Aside:    true,
	atom.Iframe:   true,
	atom.Svg:      true,
	atom.Form:     true,
}

// Parse extracts a Page from raw HTML.
func Parse(data []byte) (*Page, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("extract: parse html: %w", err)
	}

	p := &Page{}
	var text []string

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if skipSubtree[n.DataAtom] {
				return
			}
			switch n.DataAtom {
			case atom.Title:
				if p.Title == "" {
					p.Title = collectText(n)
				}
				return
			case atom.Meta:
				if strings.EqualFold(attr(n, "name"), "description") && p.MetaDescription == "" {
					p.MetaDescription = strings.TrimSpace(attr(n, "content"))
				}
				return
			case atom.H1, atom.H2, atom.H3, atom.H4:
				if h := collectText(n); h != "" {
					p.Headings = append(p.Headings, h)
					text = append(text, h)
				}
				return
			}
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				text = append(text, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	p.Text = collapseSpace(strings.Join(text, " "))
	return p, nil
}

// collectText gathers the visible text under a node, whitespace-collapsed.
func collectText(n *html.Node) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skipSubtree[n.DataAtom] {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return collapseSpace(strings.Join(parts, " "))
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
