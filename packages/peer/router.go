package peer

import (
	"net/http"
	"regexp"
	"strings"
)

type handlerFunc func(w http.ResponseWriter, r *http.Request, u *user, params map[string]string)

// route is one method and path pattern. Patterns use {name} for a
// single path segment.
type route struct {
	Method    string
	Pattern   string
	PathRegex *regexp.Regexp
	Handler   handlerFunc
}

type router struct {
	routes []*route
}

func (r *router) add(method, pattern string, h handlerFunc) {
	r.routes = append(r.routes, &route{
		Method:    method,
		Pattern:   pattern,
		PathRegex: createPathRegex(pattern),
		Handler:   h,
	})
}

// match finds a route for method and path. allowed lists the methods
// of routes whose path matched when none matched the method.
func (r *router) match(method, path string) (rt *route, params map[string]string, allowed []string) {
	path = normalizePath(path)
	for _, candidate := range r.routes {
		p := matchPath(candidate, path)
		if p == nil {
			continue
		}
		if strings.EqualFold(candidate.Method, method) {
			return candidate, p, nil
		}
		allowed = append(allowed, candidate.Method)
	}
	return nil, nil, allowed
}

func normalizePath(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 && strings.HasSuffix(path, "/") {
		path = path[:len(path)-1]
	}
	return path
}

func matchPath(rt *route, path string) map[string]string {
	matches := rt.PathRegex.FindStringSubmatch(path)
	if matches == nil {
		return nil
	}
	params := make(map[string]string)
	for i, name := range rt.PathRegex.SubexpNames() {
		if i > 0 && name != "" {
			params[name] = matches[i]
		}
	}
	return params
}

var paramPattern = regexp.MustCompile(`\\\{(\w+)\\\}`)

func createPathRegex(pattern string) *regexp.Regexp {
	quoted := regexp.QuoteMeta(normalizePath(pattern))
	return regexp.MustCompile("^" + paramPattern.ReplaceAllString(quoted, `(?P<$1>[^/]+)`) + "$")
}
