package cache

import (
	"slices"
	"strings"
	"time"

	"github.com/mrmushfiq/prospect-gateway/internal/shared/models"
)

// Cache domains. Each one is also the key prefix.
const (
	DomainCompanySearch  = "company_search"
	DomainCompanyDetails = "company_details"
	DomainUserContext    = "user_context"
	DomainWebSearch      = "web_search"
)

// Freshness per domain
const (
	CompanySearchTTL  = 3 * time.Minute
	CompanyDetailsTTL = 10 * time.Minute
	UserContextTTL    = 2 * time.Minute
	WebSearchTTL      = 15 * time.Minute
)

// AgentCache is the typed view of a RequestCache used by the agent's tools
// and the search handler. Payloads are copied in and out so callers never
// share slices with a cached entry.
type AgentCache struct {
	store *RequestCache
}

// NewAgentCache wraps a request cache
func NewAgentCache(store *RequestCache) *AgentCache {
	return &AgentCache{store: store}
}

// Store returns the underlying request cache
func (a *AgentCache) Store() *RequestCache {
	return a.store
}

func (a *AgentCache) companySearchKey(query string, filters models.CompanyFilters) string {
	params := filters.Params()
	params["query"] = strings.TrimSpace(query)
	return a.store.Key(DomainCompanySearch, params)
}

// CompanySearch returns a cached search result page
func (a *AgentCache) CompanySearch(query string, filters models.CompanyFilters) (models.CompanySearchResult, bool) {
	res, ok := Lookup[models.CompanySearchResult](a.store, a.companySearchKey(query, filters), CompanySearchTTL)
	if !ok {
		return models.CompanySearchResult{}, false
	}
	res.Companies = slices.Clone(res.Companies)
	return res, true
}

// CacheCompanySearch stores a search result page
func (a *AgentCache) CacheCompanySearch(query string, filters models.CompanyFilters, result models.CompanySearchResult) {
	result.Companies = slices.Clone(result.Companies)
	a.store.Set(a.companySearchKey(query, filters), result)
}

func (a *AgentCache) companyDetailsKey(ruc string) string {
	return a.store.Key(DomainCompanyDetails, map[string]any{"ruc": strings.TrimSpace(ruc)})
}

// CompanyDetails returns a cached company by RUC
func (a *AgentCache) CompanyDetails(ruc string) (models.Company, bool) {
	return Lookup[models.Company](a.store, a.companyDetailsKey(ruc), CompanyDetailsTTL)
}

// CacheCompanyDetails stores a company under its RUC
func (a *AgentCache) CacheCompanyDetails(ruc string, company models.Company) {
	a.store.Set(a.companyDetailsKey(ruc), company)
}

func (a *AgentCache) userContextKey(userID string) string {
	return a.store.Key(DomainUserContext, map[string]any{"user_id": userID})
}

// UserContext returns a cached user profile
func (a *AgentCache) UserContext(userID string) (models.UserContext, bool) {
	uc, ok := Lookup[models.UserContext](a.store, a.userContextKey(userID), UserContextTTL)
	if !ok {
		return models.UserContext{}, false
	}
	return cloneUserContext(uc), true
}

// CacheUserContext stores a user profile
func (a *AgentCache) CacheUserContext(userID string, uc models.UserContext) {
	a.store.Set(a.userContextKey(userID), cloneUserContext(uc))
}

// NormalizeQuery lowercases a free-text query and collapses its whitespace
func NormalizeQuery(q string) string {
	return strings.ToLower(strings.Join(strings.Fields(q), " "))
}

func (a *AgentCache) webSearchKey(query string) string {
	return a.store.Key(DomainWebSearch, map[string]any{"query": NormalizeQuery(query)})
}

// WebSearch returns cached web results for a query
func (a *AgentCache) WebSearch(query string) ([]models.WebResult, bool) {
	results, ok := Lookup[[]models.WebResult](a.store, a.webSearchKey(query), WebSearchTTL)
	if !ok {
		return nil, false
	}
	return slices.Clone(results), true
}

// CacheWebSearch stores web results for a query
func (a *AgentCache) CacheWebSearch(query string, results []models.WebResult) {
	a.store.Set(a.webSearchKey(query), slices.Clone(results))
}

// Stats reports the underlying cache stats
func (a *AgentCache) Stats() Stats {
	return a.store.Stats()
}

// Clear empties the underlying cache
func (a *AgentCache) Clear() {
	a.store.Clear()
}

func cloneUserContext(uc models.UserContext) models.UserContext {
	uc.Offerings = slices.Clone(uc.Offerings)
	uc.TargetSectors = slices.Clone(uc.TargetSectors)
	uc.TargetRegions = slices.Clone(uc.TargetRegions)
	return uc
}
