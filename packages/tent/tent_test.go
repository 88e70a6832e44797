package tent

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/tentspec/packages/http"
	"github.com/abdul-hamid-achik/tentspec/packages/value"
)

func TestPostsFeed(t *testing.T) {
	s := Server{Base: "https://alice.example/tent/"}
	req := s.PostsFeed(FeedParams{
		Types:    []string{"https://tent.io/types/status/v0#", "https://tent.io/types/essay/v0#"},
		Mentions: []string{"https://a.example", "https://b.example post1"},
		Limit:    2,
	})

	u, err := url.Parse(req.BuildURL())
	require.NoError(t, err)
	assert.Equal(t, "/tent/posts", u.Path)
	assert.Equal(t, "2", u.Query().Get("limit"))
	assert.Equal(t, []string{"https://a.example", "https://b.example post1"}, u.Query()["mentions"])
	assert.Equal(t, PostsFeedMIME, req.Header("Accept"))
}

func TestNewPost(t *testing.T) {
	creds := &http.MACCredentials{ID: "id", Key: "key", Algorithm: "hmac-sha-256"}
	s := Server{Base: "https://alice.example", Credentials: creds}

	doc := value.NewObject(value.O("type", value.String("https://tent.io/types/status/v0#")))
	req, err := s.NewPost("https://tent.io/types/status/v0#", doc)
	require.NoError(t, err)

	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, `{"type":"https://tent.io/types/status/v0#"}`, req.Body)
	assert.Equal(t, `application/vnd.tent.post.v0+json; type="https://tent.io/types/status/v0#"`, req.Header("Content-Type"))
	assert.Same(t, creds, req.MAC)
	assert.Nil(t, s.WithoutAuth().Discover().MAC)
}

func TestImportPost(t *testing.T) {
	req, err := Server{Base: "https://bob.example"}.ImportPost("https://alice.example", "abc", "https://tent.io/types/status/v0#", `{}`)
	require.NoError(t, err)
	assert.Equal(t, "PUT", req.Method)
	assert.Equal(t, "https://bob.example/posts/https%3A%2F%2Falice.example/abc", req.BuildURL())
	assert.Contains(t, req.Header("Content-Type"), `rel="https://tent.io/rels/import"`)
}

func TestGetPostEscapesEntity(t *testing.T) {
	req := Server{Base: "https://bob.example"}.GetPost("https://alice.example", "abc", "entity")
	assert.Equal(t, "https://bob.example/posts/https%3A%2F%2Falice.example/abc?profiles=entity", req.BuildURL())
}

func TestEncode(t *testing.T) {
	s, err := Encode(nil)
	require.NoError(t, err)
	assert.Empty(t, s)

	s, err = Encode("raw")
	require.NoError(t, err)
	assert.Equal(t, "raw", s)

	s, err = Encode(map[string]any{"a": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, s)
}

func TestParseLinks(t *testing.T) {
	links := ParseLinks(`<https://alice.example/posts/x/meta>; rel="https://tent.io/rels/meta-post", </other>; rel=next`)
	require.Len(t, links, 2)
	assert.Equal(t, Link{URL: "https://alice.example/posts/x/meta", Rel: MetaPostRel}, links[0])
	assert.Equal(t, Link{URL: "/other", Rel: "next"}, links[1])
}

func TestMetaPostURL(t *testing.T) {
	resp := &http.Response{Headers: map[string]string{
		"Link": `</alice/posts/meta>; rel="https://tent.io/rels/meta-post"`,
	}}
	u, ok := MetaPostURL(resp, "http://127.0.0.1:8080/alice/")
	require.True(t, ok)
	assert.Equal(t, "http://127.0.0.1:8080/alice/posts/meta", u)

	_, ok = MetaPostURL(http.EmptyResponse(), "http://x")
	assert.False(t, ok)
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, "https://tent.io/types/status/v0", TypeBase("https://tent.io/types/status/v0#reply"))
	assert.Len(t, Digest([]byte("Fake image data")), len("sha512t256-")+64)
}

func TestPostListings(t *testing.T) {
	s := Server{Base: "https://bob.example"}
	assert.Equal(t, VersionsMIME, s.Versions("https://alice.example", "abc", "").Header("Accept"))
	assert.Equal(t, MentionsMIME, s.Mentions("https://alice.example", "abc", "entity").Header("Accept"))

	req := s.Children("https://alice.example", "abc", "v1", "entity")
	assert.Equal(t, ChildrenMIME, req.Header("Accept"))
	u, err := url.Parse(req.BuildURL())
	require.NoError(t, err)
	assert.Equal(t, "v1", u.Query().Get("version"))
	assert.Equal(t, "entity", u.Query().Get("profiles"))
}
