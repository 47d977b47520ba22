// Package markdown renders user-supplied markdown into HTML restricted to a
// small tag allow-list.
package markdown

import (
	"bytes"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var (
	postTags    = []string{"a", "abbr", "acronym", "b", "blockquote", "code", "em", "i", "li", "ol", "pre", "strong", "ul", "h1", "h2", "h3", "p"}
	commentTags = []string{"a", "abbr", "acronym", "b", "code", "em", "i", "strong"}
)

var (
	converter     = goldmark.New(goldmark.WithExtensions(extension.Linkify))
	postPolicy    = newPolicy(postTags)
	commentPolicy = newPolicy(commentTags)
)

func newPolicy(tags []string) *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements(tags...)
	p.AllowAttrs("href").OnElements("a")
	p.AllowStandardURLs()
	return p
}

// Post renders a post body.
func Post(body string) string {
	return render(body, postPolicy)
}

// Comment renders a comment body with the tighter inline-only allow-list.
func Comment(body string) string {
	return render(body, commentPolicy)
}

func render(body string, policy *bluemonday.Policy) string {
	if strings.TrimSpace(body) == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := converter.Convert([]byte(body), &buf); err != nil {
		// goldmark only fails on writer errors; fall back to escaped text.
		return policy.Sanitize(body)
	}
	return strings.TrimSpace(policy.Sanitize(buf.String()))
}
