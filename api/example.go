package api

import "net/http"

// ExampleAPI is a template API answering a ping.
type ExampleAPI struct{}

func (ExampleAPI) Namespace() string { return "broiler/v1/example" }

func (a ExampleAPI) NiceName() string { return NiceName(a) }

func (a ExampleAPI) RegisterEndpoints(r *Router) {
	r.Get("/ping", a.pong, nil)
}

func (ExampleAPI) pong(w http.ResponseWriter, _ *http.Request) error {
	return WriteJSON(w, http.StatusOK, map[string]string{"pong": "true"})
}
