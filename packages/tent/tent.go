package tent

import (
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/abdul-hamid-achik/tentspec/packages/http"
)

// Media types and relations.
const (
	PostMIME         = "application/vnd.tent.post.v0+json"
	PostsFeedMIME    = "application/vnd.tent.posts-feed.v0+json"
	ErrorMIME        = "application/vnd.tent.error.v0+json"
	MentionsMIME     = "application/vnd.tent.post-mentions.v0+json"
	VersionsMIME     = "application/vnd.tent.post-versions.v0+json"
	ChildrenMIME     = "application/vnd.tent.post-children.v0+json"
	MetaPostRel      = "https://tent.io/rels/meta-post"
	ImportRel        = "https://tent.io/rels/import"
	postContentType  = `application/vnd.tent.post.v0+json; type="%s"`
	feedAcceptHeader = PostsFeedMIME
)

// Cache-Control values understood by Tent servers when proxying.
const (
	NoCache      = "no-cache"
	ProxyIfMiss  = "proxy-if-miss"
	OnlyIfCached = "only-if-cached"
)

// PostContentType is the Content-Type for creating a post of postType.
func PostContentType(postType string) string {
	return fmt.Sprintf(postContentType, postType)
}

// TypeBase strips the fragment from a post type.
func TypeBase(postType string) string {
	base, _, _ := strings.Cut(postType, "#")
	return base
}

// Digest is the Tent attachment digest: hex of the first 256 bits of
// SHA-512.
func Digest(data []byte) string {
	sum := sha512.Sum512(data)
	return "sha512t256-" + hex.EncodeToString(sum[:32])
}

// Server builds requests against one Tent server.
type Server struct {
	// Base is the server's API root, e.g. https://alice.example/tent.
	Base        string
	Credentials *http.MACCredentials
	Headers     map[string]string
}

func (s Server) url(path string) string {
	return strings.TrimRight(s.Base, "/") + path
}

func (s Server) request(method, path string) *http.Request {
	req := http.NewRequest(method, s.url(path))
	for k, v := range s.Headers {
		req.SetHeader(k, v)
	}
	if s.Credentials != nil {
		req.WithMAC(s.Credentials)
	}
	return req
}

// WithoutAuth returns a copy of s that sends unsigned requests.
func (s Server) WithoutAuth() Server {
	s.Credentials = nil
	return s
}

// Discover is a HEAD request for the entity root.
func (s Server) Discover() *http.Request {
	return s.request("HEAD", "/")
}

// FeedParams are the posts_feed query parameters.
type FeedParams struct {
	Types    []string
	Entities []string
	// Mentions are ANDed; each element is a comma separated OR list of
	// "entity" or "entity post".
	Mentions []string
	Limit    int
	MaxRefs  int
	Profiles string
}

// PostsFeed lists posts.
func (s Server) PostsFeed(p FeedParams) *http.Request {
	req := s.request("GET", "/posts").SetHeader("Accept", feedAcceptHeader)
	if len(p.Types) > 0 {
		req.SetQueryParam("types", strings.Join(p.Types, ","))
	}
	if len(p.Entities) > 0 {
		req.SetQueryParam("entities", strings.Join(p.Entities, ","))
	}
	for _, m := range p.Mentions {
		req.AddQueryParam("mentions", m)
	}
	if p.Limit > 0 {
		req.SetQueryParam("limit", strconv.Itoa(p.Limit))
	}
	if p.MaxRefs > 0 {
		req.SetQueryParam("max_refs", strconv.Itoa(p.MaxRefs))
	}
	if p.Profiles != "" {
		req.SetQueryParam("profiles", p.Profiles)
	}
	return req
}

// PostPath is the path of a single post.
func PostPath(entity, id string) string {
	return "/posts/" + url.QueryEscape(entity) + "/" + url.PathEscape(id)
}

// GetPost fetches one post. profiles may be empty.
func (s Server) GetPost(entity, id, profiles string) *http.Request {
	req := s.request("GET", PostPath(entity, id)).SetHeader("Accept", PostMIME)
	if profiles != "" {
		req.SetQueryParam("profiles", profiles)
	}
	return req
}

// Versions lists the versions of a post.
func (s Server) Versions(entity, id, profiles string) *http.Request {
	return s.GetPost(entity, id, profiles).SetHeader("Accept", VersionsMIME)
}

// Mentions lists the posts mentioning a post.
func (s Server) Mentions(entity, id, profiles string) *http.Request {
	return s.GetPost(entity, id, profiles).SetHeader("Accept", MentionsMIME)
}

// Children lists the versions whose parent is version.
func (s Server) Children(entity, id, version, profiles string) *http.Request {
	req := s.GetPost(entity, id, profiles).SetHeader("Accept", ChildrenMIME)
	if version != "" {
		req.SetQueryParam("version", version)
	}
	return req
}

// NewPost creates a post from doc, which is JSON encoded unless it is
// already a string.
func (s Server) NewPost(postType string, doc any, attachments ...*http.Attachment) (*http.Request, error) {
	return s.withPost(s.request("POST", "/posts"), postType, doc, attachments)
}

// UpdatePost creates a new version of an existing post.
func (s Server) UpdatePost(entity, id, postType string, doc any, attachments ...*http.Attachment) (*http.Request, error) {
	return s.withPost(s.request("PUT", PostPath(entity, id)), postType, doc, attachments)
}

// ImportPost delivers a post published elsewhere, as a notification.
func (s Server) ImportPost(entity, id, postType string, doc any, attachments ...*http.Attachment) (*http.Request, error) {
	req, err := s.withPost(s.request("PUT", PostPath(entity, id)), postType, doc, attachments)
	if err != nil {
		return nil, err
	}
	req.SetHeader("Content-Type", PostContentType(postType)+`; rel="`+ImportRel+`"`)
	return req, nil
}

func (s Server) withPost(req *http.Request, postType string, doc any, attachments []*http.Attachment) (*http.Request, error) {
	body, err := Encode(doc)
	if err != nil {
		return nil, err
	}
	req.SetHeader("Accept", PostMIME)
	req.SetHeader("Content-Type", PostContentType(postType))
	req.SetBody(body)
	for _, a := range attachments {
		req.Attach(a)
	}
	return req, nil
}

// Encode renders doc as the JSON request body.
func Encode(doc any) (string, error) {
	switch d := doc.(type) {
	case nil:
		return "", nil
	case string:
		return d, nil
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encoding post: %w", err)
	}
	return string(data), nil
}

// Link is one entry of a Link header.
type Link struct {
	URL string
	Rel string
}

var linkPattern = regexp.MustCompile(`<([^>]*)>\s*((?:;\s*[^;,]+)*)`)

// ParseLinks parses an RFC 8288 Link header.
func ParseLinks(header string) []Link {
	var links []Link
	for _, m := range linkPattern.FindAllStringSubmatch(header, -1) {
		link := Link{URL: m[1]}
		for _, param := range strings.Split(m[2], ";") {
			key, val, ok := strings.Cut(strings.TrimSpace(param), "=")
			if ok && strings.EqualFold(strings.TrimSpace(key), "rel") {
				link.Rel = strings.Trim(strings.TrimSpace(val), `"`)
			}
		}
		links = append(links, link)
	}
	return links
}

// MetaPostURL resolves the meta post link of a discovery response against
// base.
func MetaPostURL(resp *http.Response, base string) (string, bool) {
	for _, l := range ParseLinks(resp.Header("Link")) {
		if l.Rel != MetaPostRel {
			continue
		}
		ref, err := url.Parse(l.URL)
		if err != nil {
			return "", false
		}
		b, err := url.Parse(base)
		if err != nil {
			return "", false
		}
		return b.ResolveReference(ref).String(), true
	}
	return "", false
}
