package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"go-blog/internal/db"
	"go-blog/internal/role"
)

func TestPosts(t *testing.T) {
	env := setupAPI(t, false)
	env.newUser("john@example.com", "cat", true)
	auth := basicAuth("john@example.com", "cat")

	expectStatus(t, env.do("POST", prefix+"/posts", auth, gin.H{"body": ""}), http.StatusBadRequest)
	expectStatus(t, env.do("POST", prefix+"/posts", auth, gin.H{"body": "   "}), http.StatusBadRequest)

	w := env.do("POST", prefix+"/posts", auth, gin.H{"body": "body of the *blog* post"})
	expectStatus(t, w, http.StatusCreated)
	loc := w.Header().Get("Location")
	if !strings.HasPrefix(loc, prefix+"/posts/") {
		t.Fatalf("expected Location header, got %q", loc)
	}

	w = env.do("GET", loc, auth, nil)
	expectStatus(t, w, http.StatusOK)
	got := decodeJSON(t, w)
	if got["url"] != loc {
		t.Errorf("expected url %q, got %v", loc, got["url"])
	}
	if got["bodyHtml"] != "<p>body of the <em>blog</em> post</p>" {
		t.Errorf("unexpected bodyHtml %v", got["bodyHtml"])
	}
	if got["commentCount"] != float64(0) {
		t.Errorf("expected no comments, got %v", got["commentCount"])
	}

	w = env.do("PUT", loc, auth, gin.H{"body": "updated body"})
	expectStatus(t, w, http.StatusOK)
	if body := decodeJSON(t, w)["bodyHtml"]; body != "<p>updated body</p>" {
		t.Errorf("unexpected bodyHtml after edit %v", body)
	}

	w = env.do("GET", prefix+"/posts", "", nil)
	expectStatus(t, w, http.StatusOK)
	list := decodeJSON(t, w)
	if list["count"] != float64(1) {
		t.Errorf("expected 1 post, got %v", list["count"])
	}
	if list["prev"] != nil || list["next"] != nil {
		t.Errorf("expected no page links, got prev=%v next=%v", list["prev"], list["next"])
	}
}

func TestPosts_EditPermissions(t *testing.T) {
	env := setupAPI(t, false)
	env.newUser("john@example.com", "cat", true)
	env.newUser("susan@example.com", "dog", true)
	env.newUser("boss@example.com", "root", true)

	w := env.do("POST", prefix+"/posts", basicAuth("john@example.com", "cat"), gin.H{"body": "mine"})
	expectStatus(t, w, http.StatusCreated)
	loc := w.Header().Get("Location")

	w = env.do("PUT", loc, basicAuth("susan@example.com", "dog"), gin.H{"body": "theirs"})
	expectStatus(t, w, http.StatusForbidden)
	expectStatus(t, env.do("PUT", loc, "", gin.H{"body": "anon"}), http.StatusForbidden)
	expectStatus(t, env.do("PUT", loc, basicAuth("boss@example.com", "root"), gin.H{"body": "admin"}), http.StatusOK)
	expectStatus(t, env.do("PUT", prefix+"/posts/999", basicAuth("john@example.com", "cat"), gin.H{"body": "x"}), http.StatusNotFound)
}

func TestPosts_EditNeedsWritePermission(t *testing.T) {
	env := setupAPI(t, false)
	john := env.newUser("john@example.com", "cat", true)
	auth := basicAuth("john@example.com", "cat")
	w := env.do("POST", prefix+"/posts", auth, gin.H{"body": "mine"})
	expectStatus(t, w, http.StatusCreated)
	loc := w.Header().Get("Location")

	ctx := context.Background()
	reader := role.Role{Name: "Reader", Permissions: role.Follow | role.Comment}
	if err := db.DB.WithContext(ctx).Create(&reader).Error; err != nil {
		t.Fatalf("create role: %v", err)
	}
	if err := env.svc.Users.SetRole(ctx, john, "Reader"); err != nil {
		t.Fatalf("set role: %v", err)
	}
	expectStatus(t, env.do("PUT", loc, auth, gin.H{"body": "still mine?"}), http.StatusForbidden)
}

func TestPosts_Pagination(t *testing.T) {
	env := setupAPI(t, false)
	env.cfg.Blog.PostsPerPage = 2
	env.newUser("john@example.com", "cat", true)
	auth := basicAuth("john@example.com", "cat")
	for i := 0; i < 3; i++ {
		expectStatus(t, env.do("POST", prefix+"/posts", auth, gin.H{"body": fmt.Sprintf("post %d", i)}), http.StatusCreated)
	}

	w := env.do("GET", prefix+"/posts", "", nil)
	expectStatus(t, w, http.StatusOK)
	first := decodeJSON(t, w)
	if n := len(first["posts"].([]any)); n != 2 {
		t.Fatalf("expected 2 posts on the first page, got %d", n)
	}
	next, ok := first["next"].(string)
	if !ok || !strings.Contains(next, "page=2") {
		t.Fatalf("expected next link, got %v", first["next"])
	}

	w = env.do("GET", prefix+"/posts?page=2", "", nil)
	expectStatus(t, w, http.StatusOK)
	second := decodeJSON(t, w)
	posts := second["posts"].([]any)
	if len(posts) != 1 {
		t.Fatalf("expected 1 post on the second page, got %d", len(posts))
	}
	if body := posts[0].(map[string]any)["body"]; body != "post 0" {
		t.Errorf("expected the oldest post last, got %v", body)
	}
	if second["next"] != nil || second["prev"] == nil {
		t.Errorf("unexpected links prev=%v next=%v", second["prev"], second["next"])
	}
}

func TestPosts_HugePageNumber(t *testing.T) {
	env := setupAPI(t, false)
	env.newUser("john@example.com", "cat", true)
	expectStatus(t, env.do("POST", prefix+"/posts", basicAuth("john@example.com", "cat"), gin.H{"body": "only"}), http.StatusCreated)

	w := env.do("GET", prefix+"/posts?page=9223372036854775807", "", nil)
	expectStatus(t, w, http.StatusOK)
	got := decodeJSON(t, w)
	if n := len(got["posts"].([]any)); n != 0 {
		t.Errorf("expected an empty page, got %d posts", n)
	}
	if got["next"] != nil {
		t.Errorf("expected no next link, got %v", got["next"])
	}
	prev, _ := got["prev"].(string)
	if strings.Contains(prev, "page=-") {
		t.Errorf("prev link points at a negative page: %s", prev)
	}
}

func TestComments(t *testing.T) {
	env := setupAPI(t, false)
	env.newUser("john@example.com", "cat", true)
	env.newUser("susan@example.com", "dog", true)
	john := basicAuth("john@example.com", "cat")
	susan := basicAuth("susan@example.com", "dog")

	w := env.do("POST", prefix+"/posts", john, gin.H{"body": "body of the *blog* post"})
	expectStatus(t, w, http.StatusCreated)
	postURL := w.Header().Get("Location")

	expectStatus(t, env.do("POST", postURL+"/comments", susan, gin.H{"body": ""}), http.StatusBadRequest)
	expectStatus(t, env.do("POST", prefix+"/posts/999/comments", susan, gin.H{"body": "lost"}), http.StatusNotFound)
	expectStatus(t, env.do("POST", postURL+"/comments", "", gin.H{"body": "anon"}), http.StatusForbidden)

	w = env.do("POST", postURL+"/comments", susan, gin.H{"body": "Good [post](http://example.com)!"})
	expectStatus(t, w, http.StatusCreated)
	commentURL := w.Header().Get("Location")
	got := decodeJSON(t, w)
	if got["bodyHtml"] != `Good <a href="http://example.com">post</a>!` {
		t.Errorf("unexpected bodyHtml %v", got["bodyHtml"])
	}
	if got["postUrl"] != postURL {
		t.Errorf("expected postUrl %q, got %v", postURL, got["postUrl"])
	}

	expectStatus(t, env.do("GET", commentURL, john, nil), http.StatusOK)

	w = env.do("GET", postURL+"/comments", john, nil)
	expectStatus(t, w, http.StatusOK)
	if n := decodeJSON(t, w)["count"]; n != float64(1) {
		t.Errorf("expected 1 comment, got %v", n)
	}

	w = env.do("GET", postURL, john, nil)
	expectStatus(t, w, http.StatusOK)
	if n := decodeJSON(t, w)["commentCount"]; n != float64(1) {
		t.Errorf("expected commentCount 1, got %v", n)
	}

	w = env.do("GET", prefix+"/comments", "", nil)
	expectStatus(t, w, http.StatusOK)
	if n := decodeJSON(t, w)["count"]; n != float64(1) {
		t.Errorf("expected 1 comment overall, got %v", n)
	}
}

func TestModeration(t *testing.T) {
	env := setupAPI(t, false)
	env.newUser("john@example.com", "cat", true)
	mod := env.newUser("mod@example.com", "mod", true)
	if err := env.svc.Users.SetRole(context.Background(), mod, role.NameModerator); err != nil {
		t.Fatalf("set role: %v", err)
	}
	john := basicAuth("john@example.com", "cat")
	modAuth := basicAuth("mod@example.com", "mod")

	w := env.do("POST", prefix+"/posts", john, gin.H{"body": "hello"})
	expectStatus(t, w, http.StatusCreated)
	w = env.do("POST", w.Header().Get("Location")+"/comments", john, gin.H{"body": "spam"})
	expectStatus(t, w, http.StatusCreated)
	commentURL := w.Header().Get("Location")

	expectStatus(t, env.do("PUT", commentURL+"/moderation", john, gin.H{"disabled": true}), http.StatusForbidden)
	expectStatus(t, env.do("PUT", commentURL+"/moderation", modAuth, gin.H{}), http.StatusBadRequest)
	expectStatus(t, env.do("PUT", prefix+"/comments/999/moderation", modAuth, gin.H{"disabled": true}), http.StatusNotFound)

	w = env.do("PUT", commentURL+"/moderation", modAuth, gin.H{"disabled": true})
	expectStatus(t, w, http.StatusOK)
	got := decodeJSON(t, w)
	if got["disabled"] != true || got["body"] != "spam" {
		t.Errorf("moderators see disabled comments in full, got %v", got)
	}

	w = env.do("GET", commentURL, john, nil)
	expectStatus(t, w, http.StatusOK)
	got = decodeJSON(t, w)
	if got["disabled"] != true || got["body"] != "" || got["bodyHtml"] != "" {
		t.Errorf("expected blanked comment, got %v", got)
	}

	expectStatus(t, env.do("PUT", commentURL+"/moderation", modAuth, gin.H{"disabled": false}), http.StatusOK)
	w = env.do("GET", commentURL, john, nil)
	expectStatus(t, w, http.StatusOK)
	if body := decodeJSON(t, w)["body"]; body != "spam" {
		t.Errorf("expected restored comment, got %v", body)
	}
}
