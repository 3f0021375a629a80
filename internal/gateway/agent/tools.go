package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/sirupsen/logrus"

	"github.com/mrmushfiq/prospect-gateway/internal/gateway/cache"
	"github.com/mrmushfiq/prospect-gateway/internal/shared/models"
)

// Tool names the model can call
const (
	ToolSearchCompanies   = "search_companies"
	ToolGetCompanyDetails = "get_company_details"
	ToolGetUserContext    = "get_user_context"
	ToolWebSearch         = "web_search"
)

const (
	toolPageSize   = 10
	webResultLimit = 5
)

var errUnknownTool = errors.New("unknown tool")

// Directory is the company directory and user profile source
type Directory interface {
	SearchCompanies(ctx context.Context, query string, f models.CompanyFilters) (models.CompanySearchResult, error)
	CompanyByRUC(ctx context.Context, ruc string) (models.Company, error)
	UserContext(ctx context.Context, userID string) (models.UserContext, error)
}

// WebSearcher looks things up on the public web
type WebSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]models.WebResult, error)
}

// Toolbox executes tool calls, reading through the agent cache
type Toolbox struct {
	dir   Directory
	web   WebSearcher
	cache *cache.AgentCache
	log   logrus.FieldLogger
}

// NewToolbox creates a toolbox. web may be nil, which disables web_search.
func NewToolbox(dir Directory, web WebSearcher, agentCache *cache.AgentCache, logger logrus.FieldLogger) *Toolbox {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Toolbox{dir: dir, web: web, cache: agentCache, log: logger}
}

// Definitions returns the tool schemas sent with every completion
func (t *Toolbox) Definitions() []openai.Tool {
	str := func(desc string) jsonschema.Definition {
		return jsonschema.Definition{Type: jsonschema.String, Description: desc}
	}
	integer := func(desc string) jsonschema.Definition {
		return jsonschema.Definition{Type: jsonschema.Integer, Description: desc}
	}

	defs := []openai.FunctionDefinition{
		{
			Name:        ToolSearchCompanies,
			Description: "Search the Peruvian company directory by name, trade name or RUC, with optional filters.",
			Parameters: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"query":         str("Free text matched against name, trade name or exact RUC"),
					"sector":        str("Economic sector, e.g. Finance, Mining, Agriculture"),
					"department":    str("Department (region), e.g. Lima, Arequipa"),
					"province":      str("Province"),
					"district":      str("District"),
					"size":          str("Company size: micro, small, medium, large"),
					"status":        str("Taxpayer status, e.g. ACTIVO"),
					"min_employees": integer("Minimum number of employees"),
					"max_employees": integer("Maximum number of employees"),
					"page":          integer("Result page, starting at 1"),
				},
			},
		},
		{
			Name:        ToolGetCompanyDetails,
			Description: "Get the full directory record of one company by its 11-digit RUC.",
			Parameters: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"ruc": str("11-digit taxpayer id"),
				},
				Required: []string{"ruc"},
			},
		},
		{
			Name:        ToolGetUserContext,
			Description: "Get the profile of the salesperson you are helping: their company, offerings and target markets.",
			Parameters: jsonschema.Definition{
				Type:       jsonschema.Object,
				Properties: map[string]jsonschema.Definition{},
			},
		},
	}
	if t.web != nil {
		defs = append(defs, openai.FunctionDefinition{
			Name:        ToolWebSearch,
			Description: "Search the public web for recent information about a company or market.",
			Parameters: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"query": str("Search query"),
				},
				Required: []string{"query"},
			},
		})
	}

	tools := make([]openai.Tool, 0, len(defs))
	for i := range defs {
		tools = append(tools, openai.Tool{Type: openai.ToolTypeFunction, Function: &defs[i]})
	}
	return tools
}

// Call runs one tool and returns its JSON output. Failures are returned as
// a JSON error object so the model can recover.
func (t *Toolbox) Call(ctx context.Context, userID, name, arguments string) string {
	logger := t.log.WithFields(logrus.Fields{"user_id": userID, "tool": name})

	out, err := t.call(ctx, userID, name, arguments)
	if err != nil {
		logger.WithError(err).Warn("[AGENT] tool failed")
		return errorOutput(err)
	}

	b, err := json.Marshal(out)
	if err != nil {
		logger.WithError(err).Warn("[AGENT] tool output not encodable")
		return errorOutput(err)
	}
	return string(b)
}

func (t *Toolbox) call(ctx context.Context, userID, name, arguments string) (any, error) {
	switch name {
	case ToolSearchCompanies:
		var args struct {
			Query string `json:"query"`
			models.CompanyFilters
		}
		if err := decodeArgs(arguments, &args); err != nil {
			return nil, err
		}
		return t.searchCompanies(ctx, args.Query, args.CompanyFilters)

	case ToolGetCompanyDetails:
		var args struct {
			RUC string `json:"ruc"`
		}
		if err := decodeArgs(arguments, &args); err != nil {
			return nil, err
		}
		return t.companyDetails(ctx, strings.TrimSpace(args.RUC))

	case ToolGetUserContext:
		return t.userContext(ctx, userID)

	case ToolWebSearch:
		if t.web == nil {
			break
		}
		var args struct {
			Query string `json:"query"`
		}
		if err := decodeArgs(arguments, &args); err != nil {
			return nil, err
		}
		return t.webSearch(ctx, args.Query)
	}
	return nil, fmt.Errorf("%w: %s", errUnknownTool, name)
}

func (t *Toolbox) searchCompanies(ctx context.Context, query string, f models.CompanyFilters) (models.CompanySearchResult, error) {
	f.PageSize = toolPageSize
	if res, ok := t.cache.CompanySearch(query, f); ok {
		return res, nil
	}

	res, err := t.dir.SearchCompanies(ctx, query, f)
	if err != nil {
		return models.CompanySearchResult{}, err
	}
	t.cache.CacheCompanySearch(query, f, res)
	return res, nil
}

func (t *Toolbox) companyDetails(ctx context.Context, ruc string) (models.Company, error) {
	if ruc == "" {
		return models.Company{}, errors.New("ruc is required")
	}
	if c, ok := t.cache.CompanyDetails(ruc); ok {
		return c, nil
	}

	c, err := t.dir.CompanyByRUC(ctx, ruc)
	if err != nil {
		return models.Company{}, err
	}
	t.cache.CacheCompanyDetails(ruc, c)
	return c, nil
}

func (t *Toolbox) userContext(ctx context.Context, userID string) (models.UserContext, error) {
	if uc, ok := t.cache.UserContext(userID); ok {
		return uc, nil
	}

	uc, err := t.dir.UserContext(ctx, userID)
	if err != nil {
		return models.UserContext{}, err
	}
	t.cache.CacheUserContext(userID, uc)
	return uc, nil
}

func (t *Toolbox) webSearch(ctx context.Context, query string) ([]models.WebResult, error) {
	if results, ok := t.cache.WebSearch(query); ok {
		return results, nil
	}

	results, err := t.web.Search(ctx, query, webResultLimit)
	if err != nil {
		return nil, err
	}
	t.cache.CacheWebSearch(query, results)
	return results, nil
}

func decodeArgs(arguments string, dst any) error {
	if strings.TrimSpace(arguments) == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(arguments), dst); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func errorOutput(err error) string {
	b, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(b)
}
