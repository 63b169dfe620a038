package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vestfolio/internal/ledger"
	"vestfolio/internal/models"
	"vestfolio/internal/tax"
	"vestfolio/internal/vesting"
)

func setupDB(t *testing.T) *sqlx.DB {
	url := os.Getenv("POSTGRES_URL")
	if url == "" {
		t.Skip("POSTGRES_URL is not set; skipping integration tests")
	}
	db, err := sqlx.Open("postgres", url)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	files := []string{"../../migrations/0001_init.up.sql"}
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("read migration %s: %v", f, err)
		}
		if _, err := db.Exec(string(b)); err != nil {
			t.Logf("exec migration %s: %v", f, err)
		}
	}
	return db
}

func newIntegrationRepo(t *testing.T) *Repo {
	db := setupDB(t)
	t.Cleanup(func() { db.Close() })
	scheduler := vesting.NewScheduler(vesting.NewRegistry())
	return New(db, logrus.New(), scheduler, tax.NewCalculator(tax.DefaultRates()))
}

func TestGrantLifecycle(t *testing.T) {
	r := newIntegrationRepo(t)
	ctx := context.Background()

	// Backdated two years so eight quarterly tranches have vested.
	grantDate := time.Now().UTC().AddDate(-2, 0, -1)
	g, entries, err := r.CreateGrant(ctx, models.Grant{
		Symbol:      "ACME",
		Name:        "integration grant",
		GrantDate:   grantDate,
		TotalShares: 1000,
		TotalValue:  decimal.RequireFromString("10000"),
	})
	require.NoError(t, err)
	require.NotEmpty(t, g.ID)
	require.Len(t, entries, 20)
	assert.Equal(t, vesting.PlanQuarterly5yr, g.PlanID)

	defer func() { _ = r.DeleteGrant(ctx, g.ID, true) }()

	schedule, err := r.GetSchedule(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, schedule, 20)

	now := time.Now().UTC()
	vested := ledger.VestedShares(schedule, now)
	assert.Equal(t, int64(400), vested, "eight quarters of 50 should have vested")

	// Record a sale inside the vested amount.
	sale, err := r.RecordSale(ctx, g.ID, now, 100, decimal.RequireFromString("25"), "integration", now)
	require.NoError(t, err)
	assert.True(t, sale.Tax.TotalTax.IsPositive())

	// Oversell past vested-minus-sold is rejected with the counts.
	_, err = r.RecordSale(ctx, g.ID, now, 301, decimal.RequireFromString("25"), "integration", now)
	var insufficient *ledger.ErrInsufficientShares
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, int64(400), insufficient.Vested)
	assert.Equal(t, int64(100), insufficient.Sold)
	assert.Equal(t, int64(300), insufficient.Available)

	// The recorded sale reads back with its frozen breakdown.
	got, err := r.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	assert.True(t, got.Tax.TotalTax.Equal(sale.Tax.TotalTax))

	// Unsafe edits are blocked while the sale exists.
	newShares := int64(2000)
	_, err = r.UpdateGrant(ctx, g.ID, GrantUpdate{TotalShares: &newShares})
	require.ErrorIs(t, err, ErrGrantHasSales)

	// Deleting the grant needs confirmation while sales exist.
	require.ErrorIs(t, r.DeleteGrant(ctx, g.ID, false), ErrConfirmRequired)

	require.NoError(t, r.DeleteSale(ctx, sale.ID))
	require.NoError(t, r.DeleteGrant(ctx, g.ID, false))
	_, err = r.GetGrant(ctx, g.ID)
	require.ErrorIs(t, err, ErrGrantNotFound)
}

func TestChangePlan_Persistence(t *testing.T) {
	r := newIntegrationRepo(t)
	ctx := context.Background()

	grantDate := time.Now().UTC().AddDate(-1, 0, -1)
	g, _, err := r.CreateGrant(ctx, models.Grant{
		Symbol:      "ACME",
		GrantDate:   grantDate,
		TotalShares: 1000,
		TotalValue:  decimal.RequireFromString("10000"),
	})
	require.NoError(t, err)
	defer func() { _ = r.DeleteGrant(ctx, g.ID, true) }()

	now := time.Now().UTC()
	preview, err := r.PreviewPlanChange(ctx, g.ID, vesting.PlanMonthly4yr, now)
	require.NoError(t, err)
	assert.Equal(t, int64(200), preview.VestedUnchanged, "four quarters of 50")
	assert.Equal(t, int64(800), preview.UnvestedMoved)

	entries, impact, err := r.ChangePlan(ctx, g.ID, vesting.PlanMonthly4yr, now)
	require.NoError(t, err)
	assert.Equal(t, preview.UnvestedMoved, impact.UnvestedMoved)

	var total int64
	for _, e := range entries {
		total += e.Shares
	}
	assert.Equal(t, int64(1000), total)

	got, err := r.GetGrant(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, vesting.PlanMonthly4yr, got.PlanID)

	persisted, err := r.GetSchedule(ctx, g.ID)
	require.NoError(t, err)
	assert.Len(t, persisted, len(entries))
}
