// Package v1 provides the read-only REST handlers over the published
// org cache, plus the manual refresh trigger.
package v1

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pcf-tools/org-mgmt-server/internal/cache"
	"github.com/pcf-tools/org-mgmt-server/internal/logger"
)

// APIVersion is the presented API version.
const APIVersion = "1"

// RefreshFunc triggers one full refresh cycle. The handler invokes it on
// its own goroutine; it runs independently of the scheduled refresher,
// with the cache store applying whichever replace lands last.
type RefreshFunc func()

// ErrorResponse is the standardized error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Routes holds the handler dependencies.
type Routes struct {
	store   *cache.Store
	refresh RefreshFunc
}

// NewRoutes creates a Routes instance over the given store.
func NewRoutes(store *cache.Store, refresh RefreshFunc) *Routes {
	return &Routes{
		store:   store,
		refresh: refresh,
	}
}

// Router creates the v1 router.
func Router(store *cache.Store, refresh RefreshFunc) http.Handler {
	routes := NewRoutes(store, refresh)

	r := chi.NewRouter()
	r.Get("/", routes.index)
	r.Get("/reader_status", routes.readerStatus)
	r.Get("/refresh", routes.triggerRefresh)
	r.Post("/refresh", routes.triggerRefresh)

	r.Get("/contexts", routes.listContexts)
	r.Get("/contexts/{context}", routes.listOrgs)
	r.Get("/contexts/{context}/orgs", routes.listOrgs)
	r.Get("/contexts/{context}/orgs/{org}", routes.getOrg)
	r.Get("/contexts/{context}/orgs/{org}/director", routes.getDirector)
	r.Get("/contexts/{context}/orgs/{org}/spaces", routes.listSpaces)
	r.Get("/contexts/{context}/orgs/{org}/spaces/{space}", routes.getSpace)
	r.Get("/contexts/{context}/orgs_metadata", routes.orgsMetadata)
	r.Get("/contexts/{context}/orgs_metadata/{org}", routes.orgsMetadata)

	return r
}

// index handles GET /v1, listing the available queries. The refresh
// trigger is only advertised when it is wired up.
func (rr *Routes) index(w http.ResponseWriter, _ *http.Request) {
	endpoints := map[string]string{
		"/reader_status":                                "last cache refresh timestamp",
		"/contexts":                                     "known contexts",
		"/contexts/{context}/orgs":                      "orgs in a context",
		"/contexts/{context}/orgs/{org}":                "org configuration",
		"/contexts/{context}/orgs/{org}/director":       "org director",
		"/contexts/{context}/orgs/{org}/spaces":         "spaces in an org",
		"/contexts/{context}/orgs/{org}/spaces/{space}": "space config and security group",
		"/contexts/{context}/orgs_metadata":             "metadata for every org",
	}
	if rr.refresh != nil {
		endpoints["/refresh"] = "trigger a cache refresh"
	}
	rr.writeJSONResponse(w, endpoints)
}

// readerStatus handles GET /v1/reader_status.
func (rr *Routes) readerStatus(w http.ResponseWriter, _ *http.Request) {
	rr.writeJSONResponse(w, rr.store.Status())
}

// triggerRefresh handles GET/POST /v1/refresh. The refresh runs in the
// background; the response only acknowledges the trigger.
func (rr *Routes) triggerRefresh(w http.ResponseWriter, _ *http.Request) {
	if rr.refresh == nil {
		rr.writeErrorResponse(w, "Refresh not available", http.StatusNotImplemented)
		return
	}
	logger.Info("Cache refresh explicitly requested")
	go rr.refresh()
	rr.writeJSONResponse(w, "Cache refresh in progress")
}

// listContexts handles GET /v1/contexts.
func (rr *Routes) listContexts(w http.ResponseWriter, _ *http.Request) {
	rr.writeJSONResponse(w, rr.store.Snapshot().ContextNames())
}

// listOrgs handles GET /v1/contexts/{context} and .../orgs.
func (rr *Routes) listOrgs(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "context")
	orgs, ok := rr.store.Snapshot().Context(name)
	if !ok {
		rr.writeErrorResponse(w, fmt.Sprintf("Context %s not found", name), http.StatusNotFound)
		return
	}
	rr.writeJSONResponse(w, map[string]any{
		"context": name,
		"orgs":    orgs.OrgNames(),
	})
}

// getOrg handles GET /v1/contexts/{context}/orgs/{org}.
func (rr *Routes) getOrg(w http.ResponseWriter, r *http.Request) {
	name, org, entry, ok := rr.orgEntry(r)
	if !ok {
		rr.writeNoSuchOrg(w, name, org)
		return
	}
	rr.writeJSONResponse(w, map[string]any{
		"context":    name,
		"org":        org,
		"space":      entry.Space,
		"org_config": entry.Org,
	})
}

// getDirector handles GET /v1/contexts/{context}/orgs/{org}/director.
func (rr *Routes) getDirector(w http.ResponseWriter, r *http.Request) {
	name, org, entry, ok := rr.orgEntry(r)
	if !ok {
		rr.writeNoSuchOrg(w, name, org)
		return
	}
	rr.writeJSONResponse(w, map[string]any{
		"org":      org,
		"director": entry.Director(),
	})
}

// listSpaces handles GET /v1/contexts/{context}/orgs/{org}/spaces.
func (rr *Routes) listSpaces(w http.ResponseWriter, r *http.Request) {
	name, org, entry, ok := rr.orgEntry(r)
	if !ok {
		rr.writeNoSuchOrg(w, name, org)
		return
	}
	spaces := entry.SpaceNames()
	sort.Strings(spaces)
	rr.writeJSONResponse(w, map[string]any{
		"context": name,
		"org":     org,
		"spaces":  spaces,
	})
}

// getSpace handles GET /v1/contexts/{context}/orgs/{org}/spaces/{space}.
func (rr *Routes) getSpace(w http.ResponseWriter, r *http.Request) {
	name, org, entry, ok := rr.orgEntry(r)
	space := chi.URLParam(r, "space")
	if ok {
		spaceEntry, found := entry.Spaces[space]
		if found {
			rr.writeJSONResponse(w, map[string]any{
				"context":        name,
				"org":            org,
				"space":          space,
				"space_config":   spaceEntry.Config,
				"security_group": spaceEntry.Security,
			})
			return
		}
	}
	rr.writeErrorResponse(w,
		fmt.Sprintf("No such context/org/space: %s/%s/%s", name, org, space),
		http.StatusNotFound)
}

// orgsMetadata handles GET /v1/contexts/{context}/orgs_metadata[/{org}].
func (rr *Routes) orgsMetadata(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "context")
	orgs, ok := rr.store.Snapshot().Context(name)
	if !ok {
		rr.writeErrorResponse(w, fmt.Sprintf("Context %s not found", name), http.StatusNotFound)
		return
	}

	var names []string
	if org := strings.ToLower(chi.URLParam(r, "org")); org != "" {
		if _, found := orgs[org]; !found {
			rr.writeNoSuchOrg(w, name, org)
			return
		}
		names = []string{org}
	} else {
		names = orgs.OrgNames()
	}

	metadata := make(map[string]any, len(names))
	for _, org := range names {
		metadata[org] = orgs[org].Metadata()
	}
	rr.writeJSONResponse(w, metadata)
}

// orgEntry resolves the context/org pair from the request path. Org
// names are lowercased before lookup.
func (rr *Routes) orgEntry(r *http.Request) (string, string, *cache.OrgEntry, bool) {
	name := chi.URLParam(r, "context")
	org := strings.ToLower(chi.URLParam(r, "org"))
	orgs, ok := rr.store.Snapshot().Context(name)
	if !ok {
		return name, org, nil, false
	}
	entry, ok := orgs[org]
	return name, org, entry, ok
}

func (rr *Routes) writeNoSuchOrg(w http.ResponseWriter, context, org string) {
	rr.writeErrorResponse(w,
		fmt.Sprintf("No such context/org: %s/%s", context, org),
		http.StatusNotFound)
}

// writeJSONResponse writes a JSON response with the given data.
func (*Routes) writeJSONResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("Failed to encode JSON response: %v", err)
	}
}

// writeErrorResponse writes a standardized error response.
func (*Routes) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: message}); err != nil {
		logger.Errorf("Failed to encode error response: %v", err)
	}
}
