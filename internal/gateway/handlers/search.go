package handlers

import (
	"context"
	"encoding/csv"
	"net/http"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/sirupsen/logrus"

	"github.com/mrmushfiq/prospect-gateway/internal/gateway/cache"
	"github.com/mrmushfiq/prospect-gateway/internal/gateway/plans"
	"github.com/mrmushfiq/prospect-gateway/internal/gateway/usage"
	"github.com/mrmushfiq/prospect-gateway/internal/shared/models"
)

// Directory is the company directory behind search and export
type Directory interface {
	SearchCompanies(ctx context.Context, query string, f models.CompanyFilters) (models.CompanySearchResult, error)
	ExportCompanies(ctx context.Context, query string, f models.CompanyFilters, limit int) ([]models.Company, error)
}

// SearchRequest is the body of POST /v1/companies/search
type SearchRequest struct {
	Query   string                `json:"query"`
	Filters models.CompanyFilters `json:"filters"`
}

func (r SearchRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Query, validation.Length(0, 200)),
		validation.Field(&r.Filters, validation.By(validateFilters)),
	)
}

// SearchResponse is one page of results plus the remaining search quota.
// Remaining is null on unlimited plans.
type SearchResponse struct {
	models.CompanySearchResult
	Remaining *int64 `json:"remaining"`
	Cached    bool   `json:"cached"`
}

// ExportRequest is the body of POST /v1/exports
type ExportRequest struct {
	Query   string                `json:"query"`
	Filters models.CompanyFilters `json:"filters"`
	Limit   int                   `json:"limit"`
	Format  string                `json:"format"`
}

func (r ExportRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Query, validation.Length(0, 200)),
		validation.Field(&r.Filters, validation.By(validateFilters)),
		validation.Field(&r.Limit, validation.Required, validation.Min(1)),
		validation.Field(&r.Format, validation.In("json", "csv")),
	)
}

// ExportResponse is a JSON export
type ExportResponse struct {
	Companies []models.Company `json:"companies"`
	Count     int              `json:"count"`
	Capped    bool             `json:"capped"`
	Remaining *int64           `json:"remaining"`
}

func validateFilters(v any) error {
	f, _ := v.(models.CompanyFilters)
	return validation.ValidateStruct(&f,
		validation.Field(&f.Sector, validation.Length(0, 100)),
		validation.Field(&f.MinEmployees, validation.Min(0)),
		validation.Field(&f.MaxEmployees, validation.Min(0)),
		validation.Field(&f.Page, validation.Min(0)),
		validation.Field(&f.PageSize, validation.Min(0), validation.Max(models.MaxPageSize)),
	)
}

type SearchHandler struct {
	accountant *usage.Accountant
	dir        Directory
	cache      *cache.AgentCache
	log        logrus.FieldLogger
}

func NewSearchHandler(accountant *usage.Accountant, dir Directory, agentCache *cache.AgentCache, logger logrus.FieldLogger) *SearchHandler {
	return &SearchHandler{
		accountant: accountant,
		dir:        dir,
		cache:      agentCache,
		log:        logger,
	}
}

// HandleSearch handles POST /v1/companies/search
func (h *SearchHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := UserIDFromContext(ctx)

	var req SearchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err, nil)
		return
	}

	decision, err := h.accountant.EnsureSearchAllowedAndIncrement(ctx, userID)
	if err != nil {
		writeErr(w, err, decision)
		return
	}

	resp := SearchResponse{Remaining: decision.Remaining}
	if cached, ok := h.cache.CompanySearch(req.Query, req.Filters); ok {
		resp.CompanySearchResult = cached
		resp.Cached = true
		writeJSON(w, http.StatusOK, resp)
		return
	}

	result, err := h.dir.SearchCompanies(ctx, req.Query, req.Filters)
	if err != nil {
		h.log.WithError(err).WithField("user_id", userID).Error("[SEARCH] directory query failed")
		h.refund(ctx, userID, usage.ActionSearch)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	h.cache.CacheCompanySearch(req.Query, req.Filters, result)

	resp.CompanySearchResult = result
	writeJSON(w, http.StatusOK, resp)
}

// HandleExport handles POST /v1/exports
func (h *SearchHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := UserIDFromContext(ctx)

	var req ExportRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err, nil)
		return
	}

	limits, err := h.accountant.Limits(ctx, userID)
	if err != nil {
		writeErr(w, err, nil)
		return
	}
	capped := false
	if perExport := limits.CompaniesPerExport; !plans.IsUnlimited(perExport) && int64(req.Limit) > perExport {
		req.Limit = int(perExport)
		capped = true
	}

	decision, err := h.accountant.EnsureExportAllowedAndIncrement(ctx, userID)
	if err != nil {
		writeErr(w, err, decision)
		return
	}

	companies, err := h.dir.ExportCompanies(ctx, req.Query, req.Filters, req.Limit)
	if err != nil {
		h.log.WithError(err).WithField("user_id", userID).Error("[EXPORT] directory query failed")
		h.refund(ctx, userID, usage.ActionExport)
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	h.log.WithFields(logrus.Fields{"user_id": userID, "rows": len(companies), "capped": capped}).Info("[EXPORT] export complete")

	if req.Format == "csv" {
		writeCSV(w, companies, capped)
		return
	}
	writeJSON(w, http.StatusOK, ExportResponse{
		Companies: companies,
		Count:     len(companies),
		Capped:    capped,
		Remaining: decision.Remaining,
	})
}

// refund gives back an admitted unit whose work failed. It runs detached
// from the request so a cancelled client still gets its unit back.
func (h *SearchHandler) refund(ctx context.Context, userID string, action usage.Action) {
	if err := h.accountant.Refund(context.WithoutCancel(ctx), userID, action); err != nil {
		h.log.WithError(err).WithField("user_id", userID).Warn("[USAGE] refund failed")
	}
}

var csvHeader = []string{
	"ruc", "name", "trade_name", "sector", "department", "province", "district", "size",
	"status", "employees", "website", "phone", "email", "year_founded", "revenue", "legal_address",
}

func writeCSV(w http.ResponseWriter, companies []models.Company, capped bool) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="companies.csv"`)
	w.Header().Set("X-Export-Capped", strconv.FormatBool(capped))
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	cw.Write(csvHeader)
	for _, c := range companies {
		cw.Write([]string{
			c.RUC, c.Name, c.TradeName, c.Sector, c.Department, c.Province, c.District, c.Size,
			c.Status, strconv.Itoa(c.Employees), c.Website, c.Phone, c.Email,
			strconv.Itoa(c.YearFounded), c.Revenue, c.LegalAddress,
		})
	}
	cw.Flush()
}
