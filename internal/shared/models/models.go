package models

import "time"

// APIKey represents a gateway API key bound to a user
type APIKey struct {
	ID         string
	KeyHash    string
	KeyPrefix  string
	Name       string
	UserID     string
	IsActive   bool
	LastUsedAt *time.Time
	CreatedAt  time.Time
}

// Account is the billing view of a user: who they are, which plan they are on
// and when they signed up (the anchor of their billing month)
type Account struct {
	UserID    string
	Plan      string
	SignupAt  time.Time
	CreatedAt time.Time
}

// Counters are the per-period usage totals of one user
type Counters struct {
	Searches           int64   `json:"searches"`
	Exports            int64   `json:"exports"`
	PromptInputTokens  int64   `json:"prompt_input_tokens"`
	PromptOutputTokens int64   `json:"prompt_output_tokens"`
	PromptDollars      float64 `json:"prompt_dollars"`
}

// Company is a row of the company directory
type Company struct {
	RUC          string `json:"ruc"`
	Name         string `json:"name"`
	TradeName    string `json:"trade_name,omitempty"`
	Sector       string `json:"sector,omitempty"`
	Department   string `json:"department,omitempty"`
	Province     string `json:"province,omitempty"`
	District     string `json:"district,omitempty"`
	Size         string `json:"size,omitempty"`
	Status       string `json:"status,omitempty"`
	Employees    int    `json:"employees,omitempty"`
	Website      string `json:"website,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Email        string `json:"email,omitempty"`
	Description  string `json:"description,omitempty"`
	YearFounded  int    `json:"year_founded,omitempty"`
	Revenue      string `json:"revenue,omitempty"`
	LegalAddress string `json:"legal_address,omitempty"`
}

// CompanyFilters narrows a company search. Empty fields do not filter.
type CompanyFilters struct {
	Sector       string `json:"sector,omitempty"`
	Department   string `json:"department,omitempty"`
	Province     string `json:"province,omitempty"`
	District     string `json:"district,omitempty"`
	Size         string `json:"size,omitempty"`
	Status       string `json:"status,omitempty"`
	MinEmployees int    `json:"min_employees,omitempty"`
	MaxEmployees int    `json:"max_employees,omitempty"`
	Page         int    `json:"page,omitempty"`
	PageSize     int    `json:"page_size,omitempty"`
}

// Company search paging bounds
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Paging returns the page and page size a search actually uses: page 1
// when unset, the default size when unset, sizes capped at MaxPageSize.
func (f CompanyFilters) Paging() (page, pageSize int) {
	page, pageSize = f.Page, f.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}

// Params flattens the filters into a parameter map for cache keys. Paging
// is normalized so equivalent searches share a key; the key builder drops
// the empty string filters.
func (f CompanyFilters) Params() map[string]any {
	p := map[string]any{
		"sector":     f.Sector,
		"department": f.Department,
		"province":   f.Province,
		"district":   f.District,
		"size":       f.Size,
		"status":     f.Status,
	}
	if f.MinEmployees > 0 {
		p["min_employees"] = f.MinEmployees
	}
	if f.MaxEmployees > 0 {
		p["max_employees"] = f.MaxEmployees
	}
	p["page"], p["page_size"] = f.Paging()
	return p
}

// CompanySearchResult is one page of a company search
type CompanySearchResult struct {
	Companies []Company `json:"companies"`
	Total     int       `json:"total"`
	Page      int       `json:"page"`
	PageSize  int       `json:"page_size"`
}

// UserContext is the profile the agent uses to personalize its answers
type UserContext struct {
	UserID        string   `json:"user_id"`
	FullName      string   `json:"full_name,omitempty"`
	CompanyName   string   `json:"company_name,omitempty"`
	CompanyRUC    string   `json:"company_ruc,omitempty"`
	Role          string   `json:"role,omitempty"`
	Offerings     []string `json:"offerings,omitempty"`
	TargetSectors []string `json:"target_sectors,omitempty"`
	TargetRegions []string `json:"target_regions,omitempty"`
	Plan          string   `json:"plan,omitempty"`
}

// WebResult is a single web search hit
type WebResult struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Link        string `json:"link"`
}
