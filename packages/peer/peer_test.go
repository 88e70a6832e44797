package peer

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/tentspec/packages/correlator"
	"github.com/abdul-hamid-achik/tentspec/packages/db"
	"github.com/abdul-hamid-achik/tentspec/packages/tent"
	"github.com/abdul-hamid-achik/tentspec/packages/value"
)

func newTestPeer(t *testing.T, opts ...Option) (*Server, *httptest.Server) {
	t.Helper()
	store, err := db.Open(context.Background(), "sqlite3://:memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	srv := NewServer(store, opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	srv.baseURL = ts.URL
	return srv, ts
}

func decode(t *testing.T, resp *http.Response) *value.Object {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	v, err := value.Parse(data)
	require.NoError(t, err, string(data))
	obj, ok := v.(*value.Object)
	require.True(t, ok)
	return obj
}

func member(t *testing.T, v value.Value, pointer string) value.Value {
	t.Helper()
	got, ok := value.Lookup(v, pointer)
	require.True(t, ok, "missing %s", pointer)
	return got
}

func TestCreateUserRequiresStart(t *testing.T) {
	store, err := db.Open(context.Background(), "sqlite3://:memory:")
	require.NoError(t, err)
	defer store.Close()

	_, err = NewServer(store).CreateUser(context.Background(), "alice")
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestDiscoveryLinksMetaPost(t *testing.T) {
	srv, ts := newTestPeer(t)
	u, err := srv.CreateUser(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, ts.URL+"/alice", u.Entity)

	req, _ := http.NewRequest(http.MethodHead, ts.URL+"/alice/", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	links := tent.ParseLinks(resp.Header.Get("Link"))
	require.Len(t, links, 1)
	assert.Equal(t, tent.MetaPostRel, links[0].Rel)
	assert.Equal(t, MetaPostURL(u), links[0].URL)

	resp, err = http.Get(links[0].URL)
	require.NoError(t, err)
	assert.Equal(t, tent.PostMIME, resp.Header.Get("Content-Type"))
	doc := decode(t, resp)
	assert.Equal(t, value.String(u.Entity), member(t, doc, "/post/content/entity"))
	assert.Equal(t, value.String(u.Entity+"/posts"), member(t, doc, "/post/content/servers/0/urls/posts_feed"))
}

func TestUnknownUser(t *testing.T) {
	_, ts := newTestPeer(t)

	resp, err := http.Get(ts.URL + "/nobody/posts")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, tent.ErrorMIME, resp.Header.Get("Content-Type"))
	assert.Equal(t, value.String("Not Found"), member(t, decode(t, resp), "/error"))
}

func TestNewPostAndFeed(t *testing.T) {
	srv, ts := newTestPeer(t)
	u, err := srv.CreateUser(context.Background(), "bob")
	require.NoError(t, err)

	body := `{"content":{"text":"hi"},"permissions":{"public":true}}`
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/bob/posts", strings.NewReader(body))
	req.Header.Set("Content-Type", tent.PostContentType("https://tent.io/types/status/v0#"))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	created := decode(t, resp)
	assert.Equal(t, value.String(u.Entity), member(t, created, "/post/entity"))
	assert.Equal(t, value.String("https://tent.io/types/status/v0#"), member(t, created, "/post/type"))
	versionID := member(t, created, "/post/version/id")
	assert.True(t, strings.HasPrefix(string(versionID.(value.String)), "sha512t256-"))

	resp, err = http.Get(ts.URL + "/bob/posts?types=" + url.QueryEscape("https://tent.io/types/status/v0"))
	require.NoError(t, err)
	assert.Equal(t, tent.PostsFeedMIME, resp.Header.Get("Content-Type"))
	feed := decode(t, resp)
	posts := member(t, feed, "/posts").(value.Array)
	require.Len(t, posts, 1)
	assert.Equal(t, member(t, created, "/post/id"), member(t, posts[0], "/id"))
}

func TestUpdatePostCreatesVersion(t *testing.T) {
	srv, ts := newTestPeer(t)
	u, err := srv.CreateUser(context.Background(), "carol")
	require.NoError(t, err)

	postURL := ts.URL + "/carol" + tent.PostPath(u.Entity, u.MetaPostID)
	req, _ := http.NewRequest(http.MethodPut, postURL, strings.NewReader(
		`{"type":"https://tent.io/types/meta/v0#","content":{"entity":"`+u.Entity+`"}}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	req, _ = http.NewRequest(http.MethodGet, postURL, nil)
	req.Header.Set("Accept", tent.VersionsMIME)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	versions := member(t, decode(t, resp), "/versions").(value.Array)
	assert.Len(t, versions, 2)
}

func TestMethodNotAllowed(t *testing.T) {
	srv, ts := newTestPeer(t)
	_, err := srv.CreateUser(context.Background(), "dave")
	require.NoError(t, err)

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/dave/posts", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Allow"), http.MethodGet)
}

func TestRequestsAreCorrelated(t *testing.T) {
	c := correlator.New(correlator.WithTimeout(time.Second), correlator.WithTick(10*time.Millisecond))
	srv, ts := newTestPeer(t, WithCorrelator(c))
	_, err := srv.CreateUser(context.Background(), "erin")
	require.NoError(t, err)

	c.Watch("erin", true)
	c.Expect("notifications", []string{"discovery"}, correlator.RequestMatcher{Method: "HEAD", Path: "/"})

	req, _ := http.NewRequest(http.MethodHead, ts.URL+"/erin/", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	outcomes := c.Drain(context.Background())
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Matched)
	assert.True(t, outcomes[0].Record.Passed())
}

func TestStartServes(t *testing.T) {
	store, err := db.Open(context.Background(), "sqlite3://:memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := NewServer(store, WithAddr("127.0.0.1:0"))
	require.NoError(t, srv.Start(ctx))
	defer srv.Close()

	u, err := srv.CreateUser(ctx, "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u.Entity, srv.URL()+"/user"))

	resp, err := http.Get(u.Entity + "/posts")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUserKey(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/alice/posts/x", nil)
	key, path, ok := UserKey(r)
	assert.True(t, ok)
	assert.Equal(t, "alice", key)
	assert.Equal(t, "/posts/x", path)

	_, _, ok = UserKey(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, ok)
}
