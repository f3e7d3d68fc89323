// Package handlers exposes the directory operations over HTTP.
package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/atomicbase/directory/access"
	"github.com/atomicbase/directory/config"
	"github.com/atomicbase/directory/data"
	"github.com/atomicbase/directory/filter"
	"github.com/atomicbase/directory/query"
	"github.com/atomicbase/directory/tools"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Surface route prefixes.
const (
	PublicPrefix = "/directory"
	APIPrefix    = "/api/directory"
)

// Handler serves one directory.
type Handler struct {
	Service  *query.Service
	Provider *access.Provider
}

// CallerHandler is a handler that runs on behalf of a resolved caller.
type CallerHandler func(ctx context.Context, caller access.Context, w http.ResponseWriter, req *http.Request) error

type listResponse struct {
	Entries   []data.Row `json:"entries"`
	Total     int64      `json:"total"`
	Corrected bool       `json:"corrected,omitempty"`
}

type upcomingResponse struct {
	IDs     []int64    `json:"ids"`
	Entries []data.Row `json:"entries,omitempty"`
}

// RegisterRoutes registers the health, metrics and per-surface directory
// routes on app.
func RegisterRoutes(app *http.ServeMux, h *Handler) {
	app.HandleFunc("GET /health", handleHealth())
	if config.Cfg.MetricsEnabled {
		app.Handle("GET /metrics", promhttp.Handler())
	}

	for prefix, surface := range map[string]access.Surface{
		PublicPrefix: access.SurfacePublic,
		APIPrefix:    access.SurfaceAPI,
	} {
		app.HandleFunc("GET "+prefix+"/entries", h.withCaller(surface, h.handleListEntries))
		app.HandleFunc("GET "+prefix+"/entries/{idOrSlug}", h.withCaller(surface, h.handleGetEntry))
		app.HandleFunc("GET "+prefix+"/search", h.withCaller(surface, h.handleSearch))
		app.HandleFunc("GET "+prefix+"/count", h.withCaller(surface, h.handleCount))
		app.HandleFunc("GET "+prefix+"/upcoming", h.withCaller(surface, h.handleUpcoming))
		app.HandleFunc("GET "+prefix+"/characters", h.withCaller(surface, h.handleCharacters))
	}
}

func handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tools.RespJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// withCaller resolves the caller of req. The API surface rejects anonymous
// callers.
func (h *Handler) withCaller(surface access.Surface, handler CallerHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		caller, err := h.Provider.FromRequest(req, surface)
		if err != nil {
			tools.RespErr(w, err)
			return
		}
		if surface == access.SurfaceAPI && !caller.Authenticated {
			tools.RespErr(w, tools.ErrUnauthorized)
			return
		}

		if err := handler(req.Context(), caller, w, req); err != nil {
			tools.RespErr(w, err)
		}
	}
}

// spec normalizes the request's query string. Keys prefixed cn- are request
// overrides; everything else is a filter attribute.
func (h *Handler) spec(caller access.Context, req *http.Request) filter.Spec {
	values := req.URL.Query()
	attrs := filter.AttributesFromQuery(values)
	if _, ok := attrs["limit"]; !ok && config.Cfg.DefaultLimit > 0 {
		attrs["limit"] = config.Cfg.DefaultLimit
	}

	attrs.ClampLimit(config.Cfg.MaxQueryLimit)
	return h.Service.Spec(caller, attrs, filter.OverridesFromQuery(values))
}

// handleListEntries handles GET {prefix}/entries.
func (h *Handler) handleListEntries(ctx context.Context, caller access.Context, w http.ResponseWriter, req *http.Request) error {
	rs := h.Service.ListEntries(ctx, caller, h.spec(caller, req))
	if rs.Err != nil {
		return rs.Err
	}

	w.Header().Set("X-Total-Count", strconv.FormatInt(rs.Total, 10))
	tools.RespJSON(w, http.StatusOK, listResponse{Entries: rs.Rows, Total: rs.Total, Corrected: rs.Corrected})
	return nil
}

// handleGetEntry handles GET {prefix}/entries/{idOrSlug}. The lookup goes
// through the list query so hidden entries read as missing.
func (h *Handler) handleGetEntry(ctx context.Context, caller access.Context, w http.ResponseWriter, req *http.Request) error {
	key := req.PathValue("idOrSlug")
	attrs := filter.Attributes{"lock": true, "limit": 1}

	field := "slug"
	if _, err := strconv.ParseInt(key, 10, 64); err == nil {
		field = "id"
		attrs["id"] = key
	} else {
		attrs["slug"] = key
	}

	rs := h.Service.ListEntries(ctx, caller, h.Service.Spec(caller, attrs, nil))
	if rs.Err != nil {
		return rs.Err
	}
	if len(rs.Rows) == 0 {
		return tools.EntryNotFoundErr(field, key)
	}

	tools.RespJSON(w, http.StatusOK, rs.Rows[0])
	return nil
}

// handleSearch handles GET {prefix}/search?q=terms. Only entries the caller
// may list are returned.
func (h *Handler) handleSearch(ctx context.Context, caller access.Context, w http.ResponseWriter, req *http.Request) error {
	terms := strings.TrimSpace(req.URL.Query().Get("q"))
	if terms == "" {
		return tools.InvalidRequestErr("q is required")
	}

	ids, err := h.Service.SearchVisible(ctx, caller, terms)
	if err != nil {
		return err
	}

	tools.RespJSON(w, http.StatusOK, map[string][]int64{"ids": ids})
	return nil
}

// handleCount handles GET {prefix}/count.
func (h *Handler) handleCount(ctx context.Context, caller access.Context, w http.ResponseWriter, req *http.Request) error {
	n, err := h.Service.RecordCount(ctx, caller, h.spec(caller, req))
	if err != nil {
		return err
	}

	tools.RespJSON(w, http.StatusOK, map[string]int64{"count": n})
	return nil
}

// handleUpcoming handles GET {prefix}/upcoming?type=&days=&today=&return=.
func (h *Handler) handleUpcoming(ctx context.Context, caller access.Context, w http.ResponseWriter, req *http.Request) error {
	q := req.URL.Query()
	u := query.DefaultUpcoming()

	if v := q.Get("type"); v != "" {
		u.Type = v
	}
	if v := q.Get("days"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days < 0 {
			return tools.InvalidRequestErr("days must be a non-negative integer")
		}
		u.Days = days
	}
	if v := q.Get("today"); v != "" {
		today, err := strconv.ParseBool(v)
		if err != nil {
			return tools.InvalidRequestErr("today must be a boolean")
		}
		u.Today = today
	}
	if v := q.Get("from"); v != "" {
		from, err := time.Parse(query.DateLayout, v)
		if err != nil {
			return tools.InvalidRequestErr("from must be a YYYY-MM-DD date")
		}
		u.From = from
	}
	u.ReturnIDs = q.Get("return") == "id"

	res, err := h.Service.UpcomingEvents(ctx, caller, u)
	if err != nil {
		return err
	}
	if res.IDs == nil {
		res.IDs = []int64{}
	}

	tools.RespJSON(w, http.StatusOK, upcomingResponse{IDs: res.IDs, Entries: res.Entries.Rows})
	return nil
}

// handleCharacters handles GET {prefix}/characters.
func (h *Handler) handleCharacters(ctx context.Context, caller access.Context, w http.ResponseWriter, req *http.Request) error {
	chars, err := h.Service.Characters(ctx, caller, h.spec(caller, req))
	if err != nil {
		return err
	}
	if chars == nil {
		chars = []string{}
	}

	tools.RespJSON(w, http.StatusOK, map[string][]string{"characters": chars})
	return nil
}
