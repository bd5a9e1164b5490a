package api

import (
	"net/http"
	"strconv"

	"github.com/goliatone/go-broiler/recordstore"
	"github.com/jmgilman/go/errors"
)

// RecordsAPI exposes a record store as a JSON collection. Reads are public,
// writes use the server's default permission.
type RecordsAPI[M recordstore.Model] struct {
	store     *recordstore.Store[M]
	namespace string
}

// NewRecordsAPI serves store under namespace, or under
// "broiler/v1/<hook prefix>" when namespace is empty.
func NewRecordsAPI[M recordstore.Model](store *recordstore.Store[M], namespace string) *RecordsAPI[M] {
	if namespace == "" {
		namespace = "broiler/v1/" + store.HookPrefix()
	}
	return &RecordsAPI[M]{store: store, namespace: namespace}
}

func (a *RecordsAPI[M]) Namespace() string { return a.namespace }

func (a *RecordsAPI[M]) NiceName() string { return a.store.HookPrefix() }

func (a *RecordsAPI[M]) RegisterEndpoints(r *Router) {
	r.Get("", a.list, Public)
	r.Get("/{id}", a.get, Public)
	r.Post("", a.create, nil)
	r.Patch("/{id}", a.update, nil)
	r.Delete("/{id}", a.remove, nil)
}

func (a *RecordsAPI[M]) list(w http.ResponseWriter, r *http.Request) error {
	records, err := a.store.GetAll(r.Context())
	if err != nil {
		return err
	}
	return WriteJSON(w, http.StatusOK, records)
}

func (a *RecordsAPI[M]) get(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}

	record, found, err := a.store.GetByID(r.Context(), id)
	if err != nil {
		return err
	}
	if !found {
		return errors.WithContext(errors.New(errors.CodeNotFound, "record not found"), "id", id)
	}
	return WriteJSON(w, http.StatusOK, record)
}

func (a *RecordsAPI[M]) create(w http.ResponseWriter, r *http.Request) error {
	var data recordstore.Record
	if err := DecodeJSON(w, r, &data); err != nil {
		return err
	}
	delete(data, "id")

	id, err := a.store.Insert(r.Context(), data)
	if err != nil {
		return err
	}
	return WriteJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (a *RecordsAPI[M]) update(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}

	var data recordstore.Record
	if err := DecodeJSON(w, r, &data); err != nil {
		return err
	}
	delete(data, "id")

	n, err := a.store.Update(r.Context(), id, data)
	if err != nil {
		return err
	}
	return WriteJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

func (a *RecordsAPI[M]) remove(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}

	n, err := a.store.Delete(r.Context(), recordstore.Args{"id": id})
	if err != nil {
		return err
	}
	return WriteJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

func pathID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.WithContext(errors.New(errors.CodeInvalidInput, "id must be a positive integer"), "id", raw)
	}
	return id, nil
}
