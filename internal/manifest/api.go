package manifest

import (
	"context"
	"sort"
	"strings"

	kberrors "apikb/internal/errors"
)

// SearchHit is one semantic search result surfaced through the API
type SearchHit struct {
	EntityID string  `json:"entityId"`
	Kind     string  `json:"kind"`
	Service  string  `json:"service"`
	Text     string  `json:"text"`
	Score    float64 `json:"score"`
}

// Searcher answers semantic queries against an index built from this
// manifest. The vector layer provides the implementation.
type Searcher interface {
	Search(ctx context.Context, query string) ([]SearchHit, error)
}

// API is the read surface over a loaded manifest. Lookups by name return nil
// or empty results for unknown names, never an error; only Search can fail,
// since it depends on an external index.
type API struct {
	pk       *ProjectKnowledge
	searcher Searcher
}

// NewAPI creates an API over a manifest. searcher may be nil when no vector
// index is available.
func NewAPI(pk *ProjectKnowledge, searcher Searcher) *API {
	return &API{pk: pk, searcher: searcher}
}

// Manifest returns the underlying manifest
func (a *API) Manifest() *ProjectKnowledge {
	return a.pk
}

// GetService returns a service by name, or nil
func (a *API) GetService(name string) *ServiceInfo {
	return a.pk.Service(name)
}

// GetEndpoint finds an endpoint by exact path template and method, searching
// all services. Method comparison is case-insensitive; an empty method
// matches any, returning the first endpoint at that path in service order.
func (a *API) GetEndpoint(path, method string) *EndpointInfo {
	method = strings.ToUpper(method)
	for i := range a.pk.Services {
		svc := &a.pk.Services[i]
		for j := range svc.Endpoints {
			ep := &svc.Endpoints[j]
			if ep.Path == path && (method == "" || ep.Method == method) {
				return ep
			}
		}
	}
	return nil
}

// GetDTO returns a DTO schema by name. When service is non-empty only that
// service is searched; otherwise the first match across services wins, in
// service name order.
func (a *API) GetDTO(service, name string) *DtoSchema {
	if service != "" {
		svc := a.pk.Service(service)
		if svc == nil {
			return nil
		}
		return svc.DTO(name)
	}
	for i := range a.pk.Services {
		if dto := a.pk.Services[i].DTO(name); dto != nil {
			return dto
		}
	}
	return nil
}

// EndpointFilter narrows ListEndpoints results. Zero-value fields match
// everything.
type EndpointFilter struct {
	Service    string
	Method     string
	PathPrefix string
	AuthOnly   bool
}

// EndpointEntry pairs an endpoint with its owning service
type EndpointEntry struct {
	Service  string       `json:"service"`
	Endpoint EndpointInfo `json:"endpoint"`
}

// ListEndpoints returns all endpoints matching the filter, ordered by
// service, then path, then method.
func (a *API) ListEndpoints(filter EndpointFilter) []EndpointEntry {
	method := strings.ToUpper(filter.Method)

	var out []EndpointEntry
	for i := range a.pk.Services {
		svc := &a.pk.Services[i]
		if filter.Service != "" && svc.Name != filter.Service {
			continue
		}
		for j := range svc.Endpoints {
			ep := &svc.Endpoints[j]
			if method != "" && ep.Method != method {
				continue
			}
			if filter.PathPrefix != "" && !strings.HasPrefix(ep.Path, filter.PathPrefix) {
				continue
			}
			if filter.AuthOnly && !ep.AuthRequired {
				continue
			}
			out = append(out, EndpointEntry{Service: svc.Name, Endpoint: *ep})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Service != out[j].Service {
			return out[i].Service < out[j].Service
		}
		if out[i].Endpoint.Path != out[j].Endpoint.Path {
			return out[i].Endpoint.Path < out[j].Endpoint.Path
		}
		return out[i].Endpoint.Method < out[j].Endpoint.Method
	})
	return out
}

// EnvironmentVariables returns all known environment variables, sorted by name
func (a *API) EnvironmentVariables() []EnvironmentVariable {
	out := make([]EnvironmentVariable, len(a.pk.Environment))
	copy(out, a.pk.Environment)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Search runs a semantic query against the attached index
func (a *API) Search(ctx context.Context, query string) ([]SearchHit, error) {
	if a.searcher == nil {
		return nil, kberrors.New(kberrors.IndexMissing,
			"no vector index is attached, run indexing first", nil)
	}
	return a.searcher.Search(ctx, query)
}
