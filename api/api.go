// Package api serves record stores and other endpoints over HTTP.
//
// Each API owns a namespace such as "broiler/v1/example" and registers its
// routes on a Router scoped to that namespace. The Server mounts every API,
// publishes an index of their URLs at /api and the prometheus registry at
// /metrics.
package api

import (
	"crypto/subtle"
	"net/http"
	"reflect"
	"strings"

	"github.com/jmgilman/go/errors"
)

// API is a group of endpoints under one namespace.
type API interface {
	// Namespace is the URL path prefix without leading slash.
	Namespace() string
	// NiceName keys the API in the /api index.
	NiceName() string
	// RegisterEndpoints adds the routes of the API.
	RegisterEndpoints(r *Router)
}

// HandlerFunc handles a request. A returned error is rendered as JSON with a
// status derived from its code.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// Permission authorizes a request. It returns nil to allow it.
type Permission func(r *http.Request) error

// Public allows every request.
func Public(*http.Request) error {
	return nil
}

// RequireToken allows requests carrying "Authorization: Bearer <token>".
// With an empty token every request is rejected.
func RequireToken(token string) Permission {
	return func(r *http.Request) error {
		if token == "" {
			return errors.New(errors.CodeForbidden, "api token is not configured")
		}

		header := r.Header.Get("Authorization")
		presented, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			return errors.New(errors.CodeUnauthorized, "missing or invalid bearer token")
		}
		return nil
	}
}

// NiceName returns the lowercased type name of v.
func NiceName(v any) string {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return ""
	}
	name := t.Name()
	if i := strings.IndexByte(name, '['); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(name)
}

// Router registers routes below one namespace.
type Router struct {
	server *Server
	prefix string
	auth   Permission
}

// Prefix returns the URL path the routes are mounted on.
func (rt *Router) Prefix() string {
	return rt.prefix
}

// Handle registers h for method and path below the namespace. A nil
// permission applies the server default.
func (rt *Router) Handle(method, path string, h HandlerFunc, perm Permission) {
	if perm == nil {
		perm = rt.auth
	}
	pattern := method + " " + rt.prefix + path
	rt.server.mux.Handle(pattern, rt.server.wrap(h, perm))
}

// Get registers a GET route.
func (rt *Router) Get(path string, h HandlerFunc, perm Permission) {
	rt.Handle(http.MethodGet, path, h, perm)
}

// Post registers a POST route.
func (rt *Router) Post(path string, h HandlerFunc, perm Permission) {
	rt.Handle(http.MethodPost, path, h, perm)
}

// Patch registers a PATCH route.
func (rt *Router) Patch(path string, h HandlerFunc, perm Permission) {
	rt.Handle(http.MethodPatch, path, h, perm)
}

// Delete registers a DELETE route.
func (rt *Router) Delete(path string, h HandlerFunc, perm Permission) {
	rt.Handle(http.MethodDelete, path, h, perm)
}
