package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"cryptoscreener/internal/clock"
	"cryptoscreener/internal/model"
	"cryptoscreener/internal/store"
)

func (h *Handlers) handleFiltersCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listFilters(w, r)
	case http.MethodPost:
		h.createFilter(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleFilterItem dispatches /api/filters/{id}[/toggle|/clone].
func (h *Handlers) handleFilterItem(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/filters/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if parts[0] == "" {
		writeError(w, http.StatusNotFound, "missing filter id")
		return
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid filter id")
		return
	}

	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			h.getFilter(w, r, id)
		case http.MethodPut:
			h.updateFilter(w, r, id)
		case http.MethodDelete:
			h.deleteFilter(w, r, id)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	case len(parts) == 2 && parts[1] == "toggle" && r.Method == http.MethodPost:
		h.toggleFilter(w, r, id)
	case len(parts) == 2 && parts[1] == "clone" && r.Method == http.MethodPost:
		h.cloneFilter(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (h *Handlers) listFilters(w http.ResponseWriter, r *http.Request) {
	filters, err := h.store.ListFilters(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, filters)
}

func (h *Handlers) getFilter(w http.ResponseWriter, r *http.Request, id int64) {
	f, err := h.store.GetFilter(r.Context(), id)
	if err == store.ErrNotFound {
		writeError(w, http.StatusNotFound, "filter not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (h *Handlers) createFilter(w http.ResponseWriter, r *http.Request) {
	var f model.Filter
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := f.Config.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	f.Type = f.Config.Type
	f.CreatedAt = clock.NowSeconds(h.clk)

	id, err := h.store.CreateFilter(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	f.ID = id
	writeJSON(w, http.StatusCreated, f)
}

func (h *Handlers) updateFilter(w http.ResponseWriter, r *http.Request, id int64) {
	var f model.Filter
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := f.Config.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	f.ID = id
	f.Type = f.Config.Type
	f.UpdatedAt = clock.NowSeconds(h.clk)

	if err := h.store.UpdateFilter(r.Context(), f); err != nil {
		if err == store.ErrNotFound {
			writeError(w, http.StatusNotFound, "filter not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (h *Handlers) deleteFilter(w http.ResponseWriter, r *http.Request, id int64) {
	if err := h.store.DeleteFilter(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) toggleFilter(w http.ResponseWriter, r *http.Request, id int64) {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.store.ToggleFilter(r.Context(), id, body.Enabled); err != nil {
		if err == store.ErrNotFound {
			writeError(w, http.StatusNotFound, "filter not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": body.Enabled})
}

func (h *Handlers) cloneFilter(w http.ResponseWriter, r *http.Request, id int64) {
	src, err := h.store.GetFilter(r.Context(), id)
	if err == store.ErrNotFound {
		writeError(w, http.StatusNotFound, "filter not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	clone := src
	clone.ID = 0
	clone.Name = src.Name + " (copy)"
	clone.CreatedAt = clock.NowSeconds(h.clk)
	clone.UpdatedAt = 0

	newID, err := h.store.CreateFilter(r.Context(), clone)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	clone.ID = newID
	writeJSON(w, http.StatusCreated, clone)
}
