package markdown

import (
	"regexp"
	"strings"
	"testing"
)

var tagRe = regexp.MustCompile(`<.*?>`)

func TestPost(t *testing.T) {
	got := Post("body of the *blog* post")
	want := "<p>body of the <em>blog</em> post</p>"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestPost_StripsScripts(t *testing.T) {
	got := Post("hello <script>alert(1)</script> <img src=x onerror=alert(1)>")
	if strings.Contains(got, "<script") || strings.Contains(got, "<img") || strings.Contains(got, "onerror") {
		t.Errorf("unsafe markup survived: %q", got)
	}
}

func TestPost_KeepsHeadingsAndLists(t *testing.T) {
	got := Post("# Title\n\n- one\n- two\n")
	for _, want := range []string{"<h1>Title</h1>", "<ul>", "<li>one</li>"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in %q", want, got)
		}
	}
}

func TestComment(t *testing.T) {
	got := Comment("Good [post](http://example.com)!")
	if !strings.Contains(got, `href="http://example.com"`) {
		t.Errorf("expected link to survive, got %q", got)
	}
	if strings.Contains(got, "<p>") {
		t.Errorf("comments must not carry block tags, got %q", got)
	}
	if text := tagRe.ReplaceAllString(got, ""); text != "Good post!" {
		t.Errorf("expected plain text %q, got %q", "Good post!", text)
	}
}

func TestComment_Linkify(t *testing.T) {
	got := Comment("see https://example.com/page")
	if !strings.Contains(got, `<a href="https://example.com/page"`) {
		t.Errorf("expected bare URL to be linked, got %q", got)
	}
}

func TestEmpty(t *testing.T) {
	if got := Post("   "); got != "" {
		t.Errorf("expected empty output, got %q", got)
	}
}
