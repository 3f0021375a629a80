package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mrmushfiq/prospect-gateway/internal/shared/models"
)

const companyColumns = `ruc, name, trade_name, sector, department, province, district, size, status,
	employees, website, phone, email, description, year_founded, revenue, legal_address`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCompany(row rowScanner) (models.Company, error) {
	var c models.Company
	err := row.Scan(
		&c.RUC, &c.Name, &c.TradeName, &c.Sector, &c.Department, &c.Province, &c.District,
		&c.Size, &c.Status, &c.Employees, &c.Website, &c.Phone, &c.Email, &c.Description,
		&c.YearFounded, &c.Revenue, &c.LegalAddress,
	)
	return c, err
}

// companyWhere builds the filter clause shared by search and count
func companyWhere(query string, f models.CompanyFilters) (string, []any) {
	var conds []string
	var args []any

	if q := strings.TrimSpace(query); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		conds = append(conds, "(LOWER(name) LIKE ? OR LOWER(trade_name) LIKE ? OR ruc = ?)")
		args = append(args, like, like, q)
	}

	exact := []struct {
		col string
		val string
	}{
		{"sector", f.Sector},
		{"department", f.Department},
		{"province", f.Province},
		{"district", f.District},
		{"size", f.Size},
		{"status", f.Status},
	}
	for _, e := range exact {
		if e.val != "" {
			conds = append(conds, "LOWER("+e.col+") = ?")
			args = append(args, strings.ToLower(e.val))
		}
	}

	if f.MinEmployees > 0 {
		conds = append(conds, "employees >= ?")
		args = append(args, f.MinEmployees)
	}
	if f.MaxEmployees > 0 {
		conds = append(conds, "employees <= ?")
		args = append(args, f.MaxEmployees)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// SearchCompanies returns one page of companies matching a free-text query
// and filters, with the total match count
func (db *DB) SearchCompanies(ctx context.Context, query string, f models.CompanyFilters) (models.CompanySearchResult, error) {
	page, pageSize := f.Paging()

	where, args := companyWhere(query, f)

	total, err := db.countCompanies(ctx, where, args)
	if err != nil {
		return models.CompanySearchResult{}, err
	}

	result := models.CompanySearchResult{
		Companies: []models.Company{},
		Total:     total,
		Page:      page,
		PageSize:  pageSize,
	}
	if total == 0 {
		return result, nil
	}

	stmt := db.q("SELECT " + companyColumns + " FROM companies" + where + " ORDER BY name, ruc LIMIT ? OFFSET ?")
	rows, err := db.conn.QueryContext(ctx, stmt, append(args, pageSize, (page-1)*pageSize)...)
	if err != nil {
		return models.CompanySearchResult{}, fmt.Errorf("search companies: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return models.CompanySearchResult{}, fmt.Errorf("scan company: %w", err)
		}
		result.Companies = append(result.Companies, c)
	}
	if err := rows.Err(); err != nil {
		return models.CompanySearchResult{}, fmt.Errorf("search companies: %w", err)
	}
	return result, nil
}

// CountCompanies returns how many companies match, without fetching them
func (db *DB) CountCompanies(ctx context.Context, query string, f models.CompanyFilters) (int, error) {
	where, args := companyWhere(query, f)
	return db.countCompanies(ctx, where, args)
}

func (db *DB) countCompanies(ctx context.Context, where string, args []any) (int, error) {
	var total int
	if err := db.conn.QueryRowContext(ctx, db.q("SELECT COUNT(*) FROM companies"+where), args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count companies: %w", err)
	}
	return total, nil
}

// CompanyByRUC returns one company by its tax id
func (db *DB) CompanyByRUC(ctx context.Context, ruc string) (models.Company, error) {
	row := db.conn.QueryRowContext(ctx, db.q("SELECT "+companyColumns+" FROM companies WHERE ruc = ?"), ruc)
	c, err := scanCompany(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Company{}, fmt.Errorf("company %s: %w", ruc, ErrNotFound)
	}
	if err != nil {
		return models.Company{}, fmt.Errorf("get company: %w", err)
	}
	return c, nil
}

// UpsertCompany inserts or replaces a directory entry
func (db *DB) UpsertCompany(ctx context.Context, c models.Company) error {
	stmt := db.q(`
		INSERT INTO companies (` + companyColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (ruc) DO UPDATE SET
			name = excluded.name, trade_name = excluded.trade_name, sector = excluded.sector,
			department = excluded.department, province = excluded.province, district = excluded.district,
			size = excluded.size, status = excluded.status, employees = excluded.employees,
			website = excluded.website, phone = excluded.phone, email = excluded.email,
			description = excluded.description, year_founded = excluded.year_founded,
			revenue = excluded.revenue, legal_address = excluded.legal_address
	`)
	_, err := db.conn.ExecContext(ctx, stmt,
		c.RUC, c.Name, c.TradeName, c.Sector, c.Department, c.Province, c.District,
		c.Size, c.Status, c.Employees, c.Website, c.Phone, c.Email, c.Description,
		c.YearFounded, c.Revenue, c.LegalAddress,
	)
	if err != nil {
		return fmt.Errorf("upsert company: %w", err)
	}
	return nil
}

// UserContext returns the seller profile the agent personalizes with.
// A user without a profile gets an empty one carrying only the plan.
func (db *DB) UserContext(ctx context.Context, userID string) (models.UserContext, error) {
	stmt := db.q(`
		SELECT a.plan, COALESCE(p.full_name, ''), COALESCE(p.company_name, ''), COALESCE(p.company_ruc, ''),
			COALESCE(p.role, ''), COALESCE(p.offerings, '[]'), COALESCE(p.target_sectors, '[]'),
			COALESCE(p.target_regions, '[]')
		FROM accounts a
		LEFT JOIN user_profiles p ON p.user_id = a.user_id
		WHERE a.user_id = ?
	`)

	uc := models.UserContext{UserID: userID}
	var offerings, sectors, regions string
	err := db.conn.QueryRowContext(ctx, stmt, userID).Scan(
		&uc.Plan, &uc.FullName, &uc.CompanyName, &uc.CompanyRUC, &uc.Role,
		&offerings, &sectors, &regions,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.UserContext{}, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return models.UserContext{}, fmt.Errorf("get user context: %w", err)
	}

	for _, f := range []struct {
		raw string
		dst *[]string
	}{{offerings, &uc.Offerings}, {sectors, &uc.TargetSectors}, {regions, &uc.TargetRegions}} {
		if err := json.Unmarshal([]byte(f.raw), f.dst); err != nil {
			return models.UserContext{}, fmt.Errorf("decode user profile: %w", err)
		}
	}
	return uc, nil
}

// UpsertUserProfile stores the seller profile of a user
func (db *DB) UpsertUserProfile(ctx context.Context, uc models.UserContext) error {
	encode := func(v []string) string {
		if v == nil {
			v = []string{}
		}
		b, _ := json.Marshal(v)
		return string(b)
	}

	stmt := db.q(`
		INSERT INTO user_profiles (user_id, full_name, company_name, company_ruc, role, offerings, target_sectors, target_regions)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			full_name = excluded.full_name, company_name = excluded.company_name,
			company_ruc = excluded.company_ruc, role = excluded.role, offerings = excluded.offerings,
			target_sectors = excluded.target_sectors, target_regions = excluded.target_regions
	`)
	_, err := db.conn.ExecContext(ctx, stmt,
		uc.UserID, uc.FullName, uc.CompanyName, uc.CompanyRUC, uc.Role,
		encode(uc.Offerings), encode(uc.TargetSectors), encode(uc.TargetRegions),
	)
	if err != nil {
		return fmt.Errorf("upsert user profile: %w", err)
	}
	return nil
}

// ExportCompanies returns up to limit matching companies in one batch
func (db *DB) ExportCompanies(ctx context.Context, query string, f models.CompanyFilters, limit int) ([]models.Company, error) {
	where, args := companyWhere(query, f)
	stmt := db.q("SELECT " + companyColumns + " FROM companies" + where + " ORDER BY name, ruc LIMIT ?")

	rows, err := db.conn.QueryContext(ctx, stmt, append(args, limit)...)
	if err != nil {
		return nil, fmt.Errorf("export companies: %w", err)
	}
	defer rows.Close()

	companies := make([]models.Company, 0, min(limit, models.DefaultPageSize*5))
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, fmt.Errorf("scan company: %w", err)
		}
		companies = append(companies, c)
	}
	return companies, rows.Err()
}
