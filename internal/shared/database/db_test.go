package database

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrmushfiq/prospect-gateway/internal/gateway/usage"
	"github.com/mrmushfiq/prospect-gateway/internal/shared/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewSQLite(filepath.Join(t.TempDir(), "gateway.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func testKey() usage.PeriodKey {
	return usage.PeriodKey{UserID: "u1", PeriodStart: time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC)}
}

func TestRebind(t *testing.T) {
	pg := &DB{dialect: dialectPostgres}
	lite := &DB{dialect: dialectSQLite}

	query := "SELECT a FROM t WHERE b = ? AND c = ? LIMIT ?"
	assert.Equal(t, "SELECT a FROM t WHERE b = $1 AND c = $2 LIMIT $3", pg.q(query))
	assert.Equal(t, query, lite.q(query))
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	assert.NoError(t, db.Migrate(context.Background()))
}

func TestCountersMissingRowIsZero(t *testing.T) {
	db := newTestDB(t)

	c, err := db.Counters(context.Background(), testKey())
	require.NoError(t, err)
	assert.Equal(t, models.Counters{}, c)
}

func TestIncrement(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	key := testKey()

	v, err := db.Increment(ctx, key, usage.FieldSearches, 1)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	v, err = db.Increment(ctx, key, usage.FieldSearches, 2)
	require.NoError(t, err)
	assert.Equal(t, 3.0, v)

	v, err = db.Increment(ctx, key, usage.FieldPromptDollars, 0.125)
	require.NoError(t, err)
	assert.InDelta(t, 0.125, v, 1e-12)

	c, err := db.Counters(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(3), c.Searches)
	assert.InDelta(t, 0.125, c.PromptDollars, 1e-12)

	// other periods are separate rows
	other := key
	other.PeriodStart = key.PeriodStart.AddDate(0, 1, 0)
	c, err = db.Counters(ctx, other)
	require.NoError(t, err)
	assert.Zero(t, c.Searches)
}

func TestIncrementRejectsUnknownField(t *testing.T) {
	db := newTestDB(t)

	_, err := db.Increment(context.Background(), testKey(), usage.Field("name"), 1)
	assert.ErrorIs(t, err, usage.ErrUnknownField)
}

func TestIncrementConcurrent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	key := testKey()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := db.Increment(ctx, key, usage.FieldPromptInputTokens, 10)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	c, err := db.Counters(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(500), c.PromptInputTokens)
}

func TestIncrementIfBelow(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	key := testKey()

	for i := int64(1); i <= 3; i++ {
		v, ok, err := db.IncrementIfBelow(ctx, key, usage.FieldExports, 3)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, i, v)
	}

	v, ok, err := db.IncrementIfBelow(ctx, key, usage.FieldExports, 3)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, v)

	c, err := db.Counters(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(3), c.Exports)

	_, ok, err = db.IncrementIfBelow(ctx, usage.PeriodKey{UserID: "u2", PeriodStart: key.PeriodStart}, usage.FieldExports, 0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDecrementIfPositive(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	key := testKey()

	_, ok, err := db.DecrementIfPositive(ctx, key, usage.FieldSearches)
	require.NoError(t, err)
	assert.False(t, ok, "no row yet")

	_, err = db.Increment(ctx, key, usage.FieldSearches, 2)
	require.NoError(t, err)

	for _, want := range []int64{1, 0} {
		v, ok, err := db.DecrementIfPositive(ctx, key, usage.FieldSearches)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, want, v)
	}

	_, ok, err = db.DecrementIfPositive(ctx, key, usage.FieldSearches)
	require.NoError(t, err)
	assert.False(t, ok)

	c, err := db.Counters(ctx, key)
	require.NoError(t, err)
	assert.Zero(t, c.Searches)
}

func TestSet(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	key := testKey()

	require.NoError(t, db.Set(ctx, key, usage.FieldPromptOutputTokens, 42))
	require.NoError(t, db.Set(ctx, key, usage.FieldPromptOutputTokens, 40))

	c, err := db.Counters(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(40), c.PromptOutputTokens)
}

func TestAccounts(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	_, err := db.Account(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	signup := time.Date(2026, 1, 31, 8, 15, 0, 0, time.UTC)
	require.NoError(t, db.UpsertAccount(ctx, models.Account{UserID: "u1", Plan: "free", SignupAt: signup}))
	require.NoError(t, db.UpsertAccount(ctx, models.Account{UserID: "u1", Plan: "pro", SignupAt: signup.AddDate(0, 2, 0)}))

	acct, err := db.Account(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "pro", acct.Plan)
	assert.True(t, signup.Equal(acct.SignupAt))
	assert.False(t, acct.CreatedAt.IsZero())
}

func TestAPIKeys(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	require.NoError(t, db.UpsertAccount(ctx, models.Account{UserID: "u1", Plan: "free"}))

	raw, err := db.CreateAPIKey(ctx, "u1", "laptop")
	require.NoError(t, err)
	assert.Contains(t, raw, apiKeyPrefix)

	key, err := db.GetAPIKey(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, "u1", key.UserID)
	assert.Equal(t, "laptop", key.Name)
	assert.True(t, key.IsActive)
	assert.Equal(t, hashKey(raw), key.KeyHash)
	assert.Equal(t, raw[:len(key.KeyPrefix)], key.KeyPrefix)

	require.NoError(t, db.UpdateAPIKeyLastUsed(ctx, key.ID))

	_, err = db.GetAPIKey(ctx, "pk_nope")
	assert.ErrorIs(t, err, ErrInvalidAPIKey)
}

func seedCompanies(t *testing.T, db *DB) {
	t.Helper()
	companies := []models.Company{
		{RUC: "20100047218", Name: "Banco de Credito del Peru", TradeName: "BCP", Sector: "Finance", Department: "Lima", Employees: 20000},
		{RUC: "20100130204", Name: "Banco Continental", TradeName: "BBVA", Sector: "Finance", Department: "Lima", Employees: 6000},
		{RUC: "20325117835", Name: "Agricola Cerro Prieto", Sector: "Agriculture", Department: "Lambayeque", Employees: 900},
		{RUC: "20512345678", Name: "Software Andino", Sector: "Technology", Department: "Arequipa", Employees: 45},
	}
	for _, c := range companies {
		require.NoError(t, db.UpsertCompany(context.Background(), c))
	}
}

func TestSearchCompanies(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	seedCompanies(t, db)

	res, err := db.SearchCompanies(ctx, "banco", models.CompanyFilters{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	require.Len(t, res.Companies, 2)
	assert.Equal(t, "Banco Continental", res.Companies[0].Name)

	res, err = db.SearchCompanies(ctx, "", models.CompanyFilters{Sector: "finance", MinEmployees: 10000})
	require.NoError(t, err)
	require.Len(t, res.Companies, 1)
	assert.Equal(t, "20100047218", res.Companies[0].RUC)

	res, err = db.SearchCompanies(ctx, "bbva", models.CompanyFilters{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)

	res, err = db.SearchCompanies(ctx, "20325117835", models.CompanyFilters{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)

	res, err = db.SearchCompanies(ctx, "nothing like this", models.CompanyFilters{})
	require.NoError(t, err)
	assert.Zero(t, res.Total)
	assert.NotNil(t, res.Companies)
}

func TestSearchCompaniesPagination(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	seedCompanies(t, db)

	res, err := db.SearchCompanies(ctx, "", models.CompanyFilters{Page: 2, PageSize: 3})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Total)
	assert.Equal(t, 2, res.Page)
	assert.Equal(t, 3, res.PageSize)
	require.Len(t, res.Companies, 1)
	assert.Equal(t, "Software Andino", res.Companies[0].Name)

	res, err = db.SearchCompanies(ctx, "", models.CompanyFilters{PageSize: 1000})
	require.NoError(t, err)
	assert.Equal(t, models.MaxPageSize, res.PageSize)

	n, err := db.CountCompanies(ctx, "", models.CompanyFilters{Department: "Lima"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCompanyByRUC(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	seedCompanies(t, db)

	c, err := db.CompanyByRUC(ctx, "20512345678")
	require.NoError(t, err)
	assert.Equal(t, "Software Andino", c.Name)
	assert.Equal(t, 45, c.Employees)

	_, err = db.CompanyByRUC(ctx, "00000000000")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserContext(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	require.NoError(t, db.UpsertAccount(ctx, models.Account{UserID: "u1", Plan: "pro"}))

	uc, err := db.UserContext(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "pro", uc.Plan)
	assert.Empty(t, uc.Offerings)

	require.NoError(t, db.UpsertUserProfile(ctx, models.UserContext{
		UserID:        "u1",
		FullName:      "Ana Quispe",
		CompanyName:   "Software Andino",
		Offerings:     []string{"ERP", "payroll"},
		TargetSectors: []string{"Agriculture"},
	}))

	uc, err = db.UserContext(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ana Quispe", uc.FullName)
	assert.Equal(t, []string{"ERP", "payroll"}, uc.Offerings)
	assert.Equal(t, []string{"Agriculture"}, uc.TargetSectors)
	assert.Empty(t, uc.TargetRegions)

	_, err = db.UserContext(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExportCompanies(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	seedCompanies(t, db)

	companies, err := db.ExportCompanies(ctx, "", models.CompanyFilters{Sector: "Finance"}, 500)
	require.NoError(t, err)
	assert.Len(t, companies, 2)

	companies, err = db.ExportCompanies(ctx, "", models.CompanyFilters{}, 3)
	require.NoError(t, err)
	assert.Len(t, companies, 3)
}
