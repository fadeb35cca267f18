package http

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/arkilian/sds/internal/service"
	"github.com/arkilian/sds/pkg/types"
)

// readOptions takes the projection and secondary index from the query.
func readOptions(q url.Values) service.ReadOptions {
	return service.ReadOptions{
		ViewID: q.Get("viewId"),
		Index:  q.Get("secondaryIndex"),
	}
}

func boundary(q url.Values) (types.BoundaryType, error) {
	s := q.Get("boundaryType")
	if s == "" {
		return types.BoundaryExact, nil
	}
	b, ok := types.ParseBoundaryType(s)
	if !ok {
		return 0, badRequest("unknown boundaryType %q", s)
	}
	return b, nil
}

func count(q url.Values) (int, error) {
	n, err := strconv.Atoi(q.Get("count"))
	if err != nil {
		return 0, badRequest("count must be an integer, got %q", q.Get("count"))
	}
	return n, nil
}

// keys parses the named query parameters as indexes of stream id.
func (h *Handler) keys(id string, q url.Values, opts service.ReadOptions, names ...string) ([]types.Key, error) {
	out := make([]types.Key, len(names))
	for i, name := range names {
		k, err := h.svc.ParseIndex(id, q.Get(name), opts)
		if err != nil {
			return nil, err
		}
		out[i] = k
	}
	return out, nil
}

func decodeEvents(r *http.Request) ([]types.Event, error) {
	var events []types.Event
	if err := decode(r, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (h *Handler) insertData(w http.ResponseWriter, r *http.Request) {
	events, err := decodeEvents(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.svc.InsertBatch(r.PathValue("id"), events); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// updateData upserts a batch, or overwrites stored events with
// ?replace=true.
func (h *Handler) updateData(w http.ResponseWriter, r *http.Request) {
	events, err := decodeEvents(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id := r.PathValue("id")
	if r.URL.Query().Get("replace") == "true" {
		err = h.svc.ReplaceBatch(id, events)
	} else {
		err = h.svc.UpdateBatch(id, events)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// removeData deletes the event at ?index=, or every event in
// ?startIndex=&endIndex=.
func (h *Handler) removeData(w http.ResponseWriter, r *http.Request) {
	id, q := r.PathValue("id"), r.URL.Query()
	var err error
	switch {
	case q.Has("index"):
		var ks []types.Key
		if ks, err = h.keys(id, q, service.ReadOptions{}, "index"); err == nil {
			err = h.svc.Remove(id, ks[0])
		}
	case q.Has("startIndex") && q.Has("endIndex"):
		var ks []types.Key
		if ks, err = h.keys(id, q, service.ReadOptions{}, "startIndex", "endIndex"); err == nil {
			err = h.svc.RemoveWindow(id, ks[0], ks[1])
		}
	default:
		err = badRequest("index or startIndex and endIndex are required")
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// getData serves the event at ?index=, the window ?startIndex=&endIndex=
// with an optional filter, or the range ?startIndex=&count=.
func (h *Handler) getData(w http.ResponseWriter, r *http.Request) {
	id, q := r.PathValue("id"), r.URL.Query()
	opts := readOptions(q)
	b, err := boundary(q)
	if err != nil {
		writeError(w, r, err)
		return
	}

	switch {
	case q.Has("index"):
		ks, err := h.keys(id, q, opts, "index")
		if err != nil {
			writeError(w, r, err)
			return
		}
		ev, err := h.svc.GetAt(id, ks[0], b, opts)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ev)

	case q.Has("startIndex") && q.Has("endIndex"):
		ks, err := h.keys(id, q, opts, "startIndex", "endIndex")
		if err != nil {
			writeError(w, r, err)
			return
		}
		events, err := h.svc.GetWindowFiltered(id, ks[0], ks[1], b, q.Get("filter"), opts)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, events)

	case q.Has("startIndex") && q.Has("count"):
		n, err := count(q)
		if err != nil {
			writeError(w, r, err)
			return
		}
		ks, err := h.keys(id, q, opts, "startIndex")
		if err != nil {
			writeError(w, r, err)
			return
		}
		events, err := h.svc.GetRange(id, ks[0], n, b, opts)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, events)

	default:
		writeError(w, r, badRequest("index, startIndex and endIndex, or startIndex and count are required"))
	}
}

func (h *Handler) getFirst(w http.ResponseWriter, r *http.Request) {
	ev, err := h.svc.GetFirst(r.PathValue("id"), readOptions(r.URL.Query()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (h *Handler) getLast(w http.ResponseWriter, r *http.Request) {
	ev, err := h.svc.GetLast(r.PathValue("id"), readOptions(r.URL.Query()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (h *Handler) getSampled(w http.ResponseWriter, r *http.Request) {
	id, q := r.PathValue("id"), r.URL.Query()
	opts := readOptions(q)
	n, err := count(q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ks, err := h.keys(id, q, opts, "startIndex", "endIndex")
	if err != nil {
		writeError(w, r, err)
		return
	}
	events, err := h.svc.GetSampled(id, ks[0], ks[1], n, opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}
