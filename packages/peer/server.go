package peer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/tentspec/packages/correlator"
	"github.com/abdul-hamid-achik/tentspec/packages/db"
	"github.com/abdul-hamid-achik/tentspec/packages/fixtures"
	"github.com/abdul-hamid-achik/tentspec/packages/tent"
	"github.com/abdul-hamid-achik/tentspec/packages/value"
)

// ErrNotStarted is returned when a user is created before the server
// knows its own URL.
var ErrNotStarted = errors.New("peer: server not started")

// Server is the embedded Tent peer.
type Server struct {
	store      *db.Store
	router     *router
	addr       string
	baseURL    string
	delay      time.Duration
	logger     *slog.Logger
	correlator *correlator.Correlator

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// Option is a functional option for Server
type Option func(*Server)

// WithAddr sets the listen address, e.g. 127.0.0.1:0.
func WithAddr(addr string) Option {
	return func(s *Server) {
		s.addr = addr
	}
}

// WithBaseURL sets the public URL entities are built from. By default it
// is derived from the listener.
func WithBaseURL(u string) Option {
	return func(s *Server) {
		s.baseURL = strings.TrimRight(u, "/")
	}
}

// WithDelay adds a delay to all responses
func WithDelay(delay time.Duration) Option {
	return func(s *Server) {
		s.delay = delay
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithCorrelator captures every user-scoped request into c.
func WithCorrelator(c *correlator.Correlator) Option {
	return func(s *Server) {
		s.correlator = c
	}
}

// NewServer creates a peer backed by store.
func NewServer(store *db.Store, opts ...Option) *Server {
	s := &Server{
		store:  store,
		addr:   "127.0.0.1:0",
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *router {
	r := &router{}
	r.add(http.MethodHead, "/", s.handleDiscover)
	r.add(http.MethodGet, "/", s.handleDiscover)
	r.add(http.MethodGet, "/posts", s.handleFeed)
	r.add(http.MethodPost, "/posts", s.handleNewPost)
	r.add(http.MethodGet, "/posts/{entity}/{id}", s.handleGetPost)
	r.add(http.MethodPut, "/posts/{entity}/{id}", s.handleUpdatePost)
	return r
}

// UserKey correlates requests by the user they are addressed to. The
// returned path is relative to the user's root.
func UserKey(r *http.Request) (key, path string, ok bool) {
	name, rest, _ := strings.Cut(strings.TrimPrefix(r.URL.EscapedPath(), "/"), "/")
	if name == "" {
		return "", "", false
	}
	return name, "/" + rest, true
}

// Handler returns the peer's HTTP handler, wrapped in the correlator's
// capture middleware when one is configured.
func (s *Server) Handler() http.Handler {
	var h http.Handler = http.HandlerFunc(s.handleRequest)
	if s.correlator != nil {
		h = s.correlator.Middleware(UserKey, h)
	}
	return h
}

// Start listens on the configured address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("peer: listening on %s: %w", s.addr, err)
	}

	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}

	s.mu.Lock()
	s.listener = ln
	s.server = srv
	if s.baseURL == "" {
		s.baseURL = "http://" + ln.Addr().String()
	}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("peer server stopped", "error", err)
		}
	}()

	s.logger.Info("peer listening", "url", s.URL())
	return nil
}

// URL is the base URL users are mounted under.
func (s *Server) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseURL
}

// Close stops the server immediately.
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Close()
}

// CreateUser hosts a new user named name and publishes its meta post. An
// empty name picks a random one.
func (s *Server) CreateUser(ctx context.Context, name string) (*db.User, error) {
	base := s.URL()
	if base == "" {
		return nil, ErrNotStarted
	}
	if name == "" {
		name = "user" + strings.ToLower(fixtures.ID()[:12])
	}

	entity := base + "/" + name
	meta := value.NewObject(
		value.O("type", value.String(fixtures.MetaType)),
		value.O("content", value.NewObject(
			value.O("entity", value.String(entity)),
			value.O("profile", value.NewObject(value.O("name", value.String(name)))),
			value.O("servers", value.Array{serverDescription(entity)}),
		)),
		value.O("permissions", value.NewObject(value.O("public", value.Bool(true)))),
	)

	post, err := s.publish(ctx, entity, "", meta, nil)
	if err != nil {
		return nil, err
	}
	u := &db.User{Name: name, Entity: entity, MetaPostID: post.ID}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func serverDescription(entity string) *value.Object {
	endpoint := func(path string) value.Value { return value.String(entity + path) }
	return value.NewObject(
		value.O("version", value.String("0.3")),
		value.O("preference", value.Number(0)),
		value.O("urls", value.NewObject(
			value.O("oauth_auth", endpoint("/oauth/authorize")),
			value.O("oauth_token", endpoint("/oauth/token")),
			value.O("posts_feed", endpoint("/posts")),
			value.O("new_post", endpoint("/posts")),
			value.O("post", endpoint("/posts/{entity}/{post}")),
			value.O("post_attachment", endpoint("/posts/{entity}/{post}/attachments/{name}")),
			value.O("attachment", endpoint("/attachments/{entity}/{digest}")),
			value.O("batch", endpoint("/batch")),
			value.O("server_info", endpoint("/server")),
			value.O("discover", endpoint("/discover?entity={entity}")),
		)),
	)
}

// MetaPostURL is the address of u's meta post.
func MetaPostURL(u *db.User) string {
	return u.Entity + tent.PostPath(u.Entity, u.MetaPostID)
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	name, path, ok := UserKey(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	u, err := s.store.User(r.Context(), name)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, db.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, "Not Found")
		s.logger.Debug("peer request", "method", r.Method, "path", r.URL.Path, "status", status)
		return
	}

	rt, params, allowed := s.router.match(r.Method, path)
	if rt == nil {
		if len(allowed) > 0 {
			w.Header().Set("Allow", strings.Join(allowed, ", "))
			writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
			return
		}
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	for k, v := range params {
		if unescaped, err := url.QueryUnescape(v); err == nil {
			params[k] = unescaped
		}
	}

	rt.Handler(w, r, &user{User: u}, params)
	s.logger.Debug("peer request", "method", r.Method, "path", r.URL.Path, "route", rt.Pattern, "duration", time.Since(start))
}

type user struct {
	*db.User
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request, u *user, _ map[string]string) {
	w.Header().Set("Link", fmt.Sprintf(`<%s>; rel="%s"`, MetaPostURL(u.User), tent.MetaPostRel))
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	post, err := s.store.Post(r.Context(), u.Entity, u.MetaPostID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tent.PostMIME, value.NewObject(value.O("post", post.Doc)))
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request, u *user, _ map[string]string) {
	q := r.URL.Query()
	var types []string
	if t := q.Get("types"); t != "" {
		types = strings.Split(t, ",")
	}
	limit := 25
	if l := q.Get("limit"); l != "" {
		if _, err := fmt.Sscanf(l, "%d", &limit); err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
	}

	posts, err := s.store.Feed(r.Context(), u.Entity, types, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	docs := make(value.Array, 0, len(posts))
	for _, p := range posts {
		docs = append(docs, p.Doc)
	}
	writeJSON(w, http.StatusOK, tent.PostsFeedMIME, value.NewObject(value.O("posts", docs)))
}

func (s *Server) handleNewPost(w http.ResponseWriter, r *http.Request, u *user, _ map[string]string) {
	doc, attachments, err := readPost(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	post, err := s.publish(r.Context(), u.Entity, "", doc, attachments)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tent.PostMIME, value.NewObject(value.O("post", post.Doc)))
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request, u *user, params map[string]string) {
	entity, id := params["entity"], params["id"]

	if strings.Contains(r.Header.Get("Accept"), tent.VersionsMIME) {
		versions, err := s.store.Versions(r.Context(), entity, id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if len(versions) == 0 {
			writeError(w, http.StatusNotFound, "Not Found")
			return
		}
		list := make(value.Array, 0, len(versions))
		for _, v := range versions {
			list = append(list, versionOf(v))
		}
		writeJSON(w, http.StatusOK, tent.VersionsMIME, value.NewObject(value.O("versions", list)))
		return
	}

	post, err := s.store.Post(r.Context(), entity, id)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tent.PostMIME, value.NewObject(value.O("post", post.Doc)))
}

func (s *Server) handleUpdatePost(w http.ResponseWriter, r *http.Request, u *user, params map[string]string) {
	entity, id := params["entity"], params["id"]
	if entity != u.Entity {
		writeError(w, http.StatusForbidden, "Forbidden")
		return
	}
	if _, err := s.store.Post(r.Context(), entity, id); err != nil {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	doc, attachments, err := readPost(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	post, err := s.publish(r.Context(), entity, id, doc, attachments)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tent.PostMIME, value.NewObject(value.O("post", post.Doc)))
}

// publish stores doc as a new version of post id, or of a new post when
// id is empty, filling in the server-assigned members.
func (s *Server) publish(ctx context.Context, entity, id string, doc *value.Object, attachments value.Array) (*db.Post, error) {
	t, ok := doc.Get("type")
	postType, isString := t.(value.String)
	if !ok || !isString || postType == "" {
		return nil, errors.New("post type is required")
	}
	if id == "" {
		id = fixtures.ID()
	}

	now := value.Number(float64(time.Now().UnixMilli()))
	doc = value.Clone(doc).(*value.Object)
	doc.Delete("version")
	doc.Set("id", value.String(id))
	doc.Set("entity", value.String(entity))
	if _, ok := doc.Get("published_at"); !ok {
		doc.Set("published_at", now)
	}
	doc.Set("received_at", now)
	if len(attachments) > 0 {
		doc.Set("attachments", attachments)
	}

	canonical, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding post: %w", err)
	}
	published, _ := doc.Get("published_at")
	version := value.NewObject(
		value.O("id", value.String(tent.Digest(canonical))),
		value.O("published_at", published),
		value.O("received_at", now),
	)
	doc.Set("version", version)

	post := &db.Post{
		Entity:    entity,
		ID:        id,
		VersionID: tent.Digest(canonical),
		Type:      string(postType),
		Doc:       doc,
	}
	if err := s.store.PutPost(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

func versionOf(p *db.Post) value.Value {
	out := value.NewObject(
		value.O("id", value.String(p.VersionID)),
		value.O("type", value.String(p.Type)),
	)
	if doc, ok := p.Doc.(*value.Object); ok {
		if v, ok := doc.Get("version"); ok {
			if vo, ok := v.(*value.Object); ok {
				for _, k := range []string{"published_at", "received_at"} {
					if member, ok := vo.Get(k); ok {
						out.Set(k, member)
					}
				}
			}
		}
	}
	return out
}

// readPost decodes a post from a JSON or multipart body. Multipart file
// parts other than "post" become attachment descriptions.
func readPost(r *http.Request) (*value.Object, value.Array, error) {
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return nil, nil, fmt.Errorf("invalid content type: %w", err)
	}

	if mediaType != "multipart/form-data" {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, nil, err
		}
		doc, err := decodePost(body, params["type"])
		return doc, nil, err
	}

	var (
		doc         *value.Object
		attachments value.Array
	)
	mr := multipart.NewReader(r.Body, params["boundary"])
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("reading multipart body: %w", err)
		}
		data, err := io.ReadAll(part)
		if err != nil {
			return nil, nil, err
		}
		if part.FormName() == "post" && doc == nil {
			_, ctParams, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
			if doc, err = decodePost(data, ctParams["type"]); err != nil {
				return nil, nil, err
			}
			continue
		}
		attachments = append(attachments, value.NewObject(
			value.O("category", value.String(part.FormName())),
			value.O("content_type", value.String(part.Header.Get("Content-Type"))),
			value.O("name", value.String(part.FileName())),
			value.O("digest", value.String(tent.Digest(data))),
			value.O("size", value.Number(float64(len(data)))),
		))
	}
	if doc == nil {
		return nil, nil, errors.New("multipart body has no post part")
	}
	return doc, attachments, nil
}

func decodePost(data []byte, contentType string) (*value.Object, error) {
	v, err := value.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid post: %w", err)
	}
	doc, ok := v.(*value.Object)
	if !ok {
		return nil, errors.New("post must be a JSON object")
	}
	if _, ok := doc.Get("type"); !ok && contentType != "" {
		doc.Set("type", value.String(contentType))
	}
	return doc, nil
}

func writeJSON(w http.ResponseWriter, status int, contentType string, doc value.Value) {
	data, err := json.Marshal(doc)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	data, _ := json.Marshal(map[string]string{"error": msg})
	w.Header().Set("Content-Type", tent.ErrorMIME)
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// Post returns the latest version of a stored post.
func (s *Server) Post(ctx context.Context, entity, id string) (*value.Object, error) {
	p, err := s.store.Post(ctx, entity, id)
	if err != nil {
		return nil, err
	}
	doc, ok := p.Doc.(*value.Object)
	if !ok {
		return nil, fmt.Errorf("post %s is not an object", id)
	}
	return doc, nil
}
