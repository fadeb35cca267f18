package http

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"

	sdserrors "github.com/arkilian/sds/internal/errors"
	"github.com/arkilian/sds/internal/observability"
	"github.com/arkilian/sds/internal/service"
	"github.com/arkilian/sds/pkg/types"
)

// Prefix is the path prefix of every route.
const Prefix = "/api/v1"

// Handler serves the REST API over a Service.
type Handler struct {
	svc    *service.Service
	logger *slog.Logger
	root   http.Handler
}

// NewHandler registers every route and wraps them in DefaultMiddleware.
func NewHandler(svc *service.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{svc: svc, logger: logger}
	mux := http.NewServeMux()

	mux.HandleFunc("GET "+Prefix+"/types", h.listTypes)
	mux.HandleFunc("PUT "+Prefix+"/types/{id}", h.putType)
	mux.HandleFunc("GET "+Prefix+"/types/{id}", h.getType)
	mux.HandleFunc("DELETE "+Prefix+"/types/{id}", h.deleteType)

	mux.HandleFunc("GET "+Prefix+"/views", h.listViews)
	mux.HandleFunc("PUT "+Prefix+"/views/{id}", h.putView)
	mux.HandleFunc("GET "+Prefix+"/views/{id}", h.getView)
	mux.HandleFunc("GET "+Prefix+"/views/{id}/map", h.getViewMap)
	mux.HandleFunc("DELETE "+Prefix+"/views/{id}", h.deleteView)

	mux.HandleFunc("GET "+Prefix+"/streams", h.listStreams)
	mux.HandleFunc("PUT "+Prefix+"/streams/{id}", h.putStream)
	mux.HandleFunc("GET "+Prefix+"/streams/{id}", h.getStream)
	mux.HandleFunc("DELETE "+Prefix+"/streams/{id}", h.deleteStream)
	mux.HandleFunc("PUT "+Prefix+"/streams/{id}/type", h.updateStreamType)

	mux.HandleFunc("PUT "+Prefix+"/streams/{id}/tags", h.putTags)
	mux.HandleFunc("GET "+Prefix+"/streams/{id}/tags", h.getTags)
	mux.HandleFunc("PUT "+Prefix+"/streams/{id}/metadata", h.putMetadata)
	mux.HandleFunc("GET "+Prefix+"/streams/{id}/metadata", h.getMetadata)
	mux.HandleFunc("PUT "+Prefix+"/streams/{id}/metadata/{key}", h.putMetadataEntry)
	mux.HandleFunc("GET "+Prefix+"/streams/{id}/metadata/{key}", h.getMetadataValue)

	mux.HandleFunc("POST "+Prefix+"/streams/{id}/data", h.insertData)
	mux.HandleFunc("PUT "+Prefix+"/streams/{id}/data", h.updateData)
	mux.HandleFunc("DELETE "+Prefix+"/streams/{id}/data", h.removeData)
	mux.HandleFunc("GET "+Prefix+"/streams/{id}/data", h.getData)
	mux.HandleFunc("GET "+Prefix+"/streams/{id}/data/first", h.getFirst)
	mux.HandleFunc("GET "+Prefix+"/streams/{id}/data/last", h.getLast)
	mux.HandleFunc("GET "+Prefix+"/streams/{id}/data/sampled", h.getSampled)

	mux.HandleFunc("GET "+Prefix+"/stats/reads", h.getReadStats)

	h.root = DefaultMiddleware(logger)(mux)
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.root.ServeHTTP(w, r)
}

func badRequest(format string, args ...any) error {
	return sdserrors.InvalidDefinition(sdserrors.CodeInvalidQuery, format, args...)
}

func decode(r *http.Request, into any) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return badRequest("failed to read request body: %v", err)
	}
	if err := codec.Unmarshal(body, into); err != nil {
		return badRequest("invalid request body: %v", err)
	}
	return nil
}

// pathID fills the definition id from the path, rejecting a body that
// names another id.
func pathID(r *http.Request, bodyID *string) error {
	id := r.PathValue("id")
	if *bodyID != "" && *bodyID != id {
		return badRequest("body id %q does not match path id %q", *bodyID, id)
	}
	*bodyID = id
	return nil
}

// Types

func (h *Handler) listTypes(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListTypes(r.URL.Query().Get("filter"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) putType(w http.ResponseWriter, r *http.Request) {
	var t types.Type
	if err := decode(r, &t); err != nil {
		writeError(w, r, err)
		return
	}
	if err := pathID(r, &t.ID); err != nil {
		writeError(w, r, err)
		return
	}
	create := h.svc.CreateOrUpdateType
	if r.URL.Query().Get("mode") == "get" {
		create = h.svc.CreateOrGetType
	}
	out, err := create(r.Context(), &t)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getType(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.GetType(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) deleteType(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteType(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Stream views

func (h *Handler) listViews(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.ListViews())
}

func (h *Handler) putView(w http.ResponseWriter, r *http.Request) {
	var v types.StreamView
	if err := decode(r, &v); err != nil {
		writeError(w, r, err)
		return
	}
	if err := pathID(r, &v.ID); err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.svc.CreateOrUpdateView(r.Context(), &v)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getView(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.GetView(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) getViewMap(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.GetViewMap(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *Handler) deleteView(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteView(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Streams

func (h *Handler) listStreams(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListStreams(r.URL.Query().Get("filter"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) putStream(w http.ResponseWriter, r *http.Request) {
	var s types.Stream
	if err := decode(r, &s); err != nil {
		writeError(w, r, err)
		return
	}
	if err := pathID(r, &s.ID); err != nil {
		writeError(w, r, err)
		return
	}
	create := h.svc.CreateOrUpdateStream
	if r.URL.Query().Get("mode") == "get" {
		create = h.svc.CreateOrGetStream
	}
	out, err := create(r.Context(), &s)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getStream(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.GetStream(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) deleteStream(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteStream(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) updateStreamType(w http.ResponseWriter, r *http.Request) {
	viewID := r.URL.Query().Get("viewId")
	if viewID == "" {
		writeError(w, r, badRequest("viewId is required"))
		return
	}
	s, err := h.svc.UpdateStreamType(r.Context(), r.PathValue("id"), viewID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// Tags and metadata

func (h *Handler) putTags(w http.ResponseWriter, r *http.Request) {
	var tags []string
	if err := decode(r, &tags); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.svc.SetTags(r.Context(), r.PathValue("id"), tags); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.svc.GetTags(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tags)
}

func (h *Handler) putMetadata(w http.ResponseWriter, r *http.Request) {
	var md map[string]string
	if err := decode(r, &md); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.svc.SetMetadata(r.Context(), r.PathValue("id"), md); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getMetadata(w http.ResponseWriter, r *http.Request) {
	md, err := h.svc.GetMetadata(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, md)
}

func (h *Handler) putMetadataEntry(w http.ResponseWriter, r *http.Request) {
	var value string
	if err := decode(r, &value); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.svc.SetMetadataEntry(r.Context(), r.PathValue("id"), r.PathValue("key"), value); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getMetadataValue(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.GetMetadataValue(r.PathValue("id"), r.PathValue("key"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Read statistics

type readStatsResponse struct {
	Predicates []observability.PropertyStats `json:"predicates"`
	IndexReads []observability.PropertyStats `json:"indexReads"`
}

func (h *Handler) getReadStats(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, r, badRequest("limit must be a non-negative integer, got %q", v))
			return
		}
		limit = n
	}
	resp := readStatsResponse{Predicates: []observability.PropertyStats{}, IndexReads: []observability.PropertyStats{}}
	if rs := h.svc.ReadStats(); rs != nil {
		resp.Predicates = rs.TopPredicates(limit)
		resp.IndexReads = rs.TopIndexReads(limit)
	}
	writeJSON(w, http.StatusOK, resp)
}
