package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"vestfolio/internal/ledger"
	"vestfolio/internal/models"
	"vestfolio/internal/tax"
	"vestfolio/internal/vesting"
)

type Repo struct {
	db        *sqlx.DB
	log       *logrus.Logger
	scheduler *vesting.Scheduler
	taxCalc   *tax.Calculator
}

func New(db *sqlx.DB, log *logrus.Logger, scheduler *vesting.Scheduler, taxCalc *tax.Calculator) *Repo {
	return &Repo{db: db, log: log, scheduler: scheduler, taxCalc: taxCalc}
}

func (r *Repo) Scheduler() *vesting.Scheduler { return r.scheduler }
func (r *Repo) TaxCalculator() *tax.Calculator { return r.taxCalc }

// CreateGrant validates the grant, generates its vesting schedule under the
// requested plan and persists both in one transaction.
func (r *Repo) CreateGrant(ctx context.Context, g models.Grant) (models.Grant, []models.ScheduleEntry, error) {
	if !g.TotalValue.IsPositive() {
		return models.Grant{}, nil, &vesting.ErrInvalidGrantInput{Field: "total_value", Reason: "must be positive"}
	}
	if g.PlanID == "" {
		g.PlanID = vesting.PlanQuarterly5yr
	}
	entries, err := r.scheduler.Generate(g.GrantDate, g.TotalShares, g.PlanID)
	if err != nil {
		return models.Grant{}, nil, err
	}

	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	g.Status = models.GrantActive

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Grant{}, nil, err
	}
	defer tx.Rollback()

	q := `INSERT INTO grants (id, symbol, name, company, grant_date, total_shares, total_value, plan_id, status, notes, created_at)
	      VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9, $10, now()) RETURNING created_at`
	if err := tx.QueryRowContext(ctx, q, g.ID, g.Symbol, g.Name, g.Company, g.GrantDate, g.TotalShares,
		g.TotalValue.String(), g.PlanID, g.Status, g.Notes).Scan(&g.CreatedAt); err != nil {
		return models.Grant{}, nil, err
	}

	if err := insertScheduleTx(ctx, tx, g.ID, entries); err != nil {
		return models.Grant{}, nil, err
	}

	if err := tx.Commit(); err != nil {
		return models.Grant{}, nil, err
	}
	for i := range entries {
		entries[i].GrantID = g.ID
	}
	return g, entries, nil
}

func insertScheduleTx(ctx context.Context, tx *sqlx.Tx, grantID string, entries []models.ScheduleEntry) error {
	q := `INSERT INTO vesting_schedule_entries (grant_id, period_index, vest_date, shares, cliff_event)
	      VALUES ($1, $2, $3, $4, $5)`
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, q, grantID, e.PeriodIndex, e.VestDate, e.Shares, e.CliffEvent); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repo) GetGrant(ctx context.Context, id string) (models.Grant, error) {
	var g models.Grant
	err := r.db.GetContext(ctx, &g, `SELECT id, symbol, name, company, grant_date, total_shares, total_value, plan_id, status, notes, created_at FROM grants WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Grant{}, ErrGrantNotFound
	}
	return g, err
}

func (r *Repo) ListGrants(ctx context.Context) ([]models.Grant, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT id, symbol, name, company, grant_date, total_shares, total_value, plan_id, status, notes, created_at FROM grants ORDER BY grant_date ASC, created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []models.Grant{}
	for rows.Next() {
		var g models.Grant
		if err := rows.StructScan(&g); err != nil {
			r.log.Warnf("scan grant failed: %v", err)
			continue
		}
		res = append(res, g)
	}
	return res, rows.Err()
}

func (r *Repo) GetSchedule(ctx context.Context, grantID string) ([]models.ScheduleEntry, error) {
	return r.getSchedule(ctx, r.db, grantID)
}

func (r *Repo) getSchedule(ctx context.Context, q sqlx.QueryerContext, grantID string) ([]models.ScheduleEntry, error) {
	rows, err := q.QueryxContext(ctx, `SELECT grant_id, period_index, vest_date, shares, cliff_event FROM vesting_schedule_entries WHERE grant_id = $1 ORDER BY period_index ASC`, grantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []models.ScheduleEntry{}
	for rows.Next() {
		var e models.ScheduleEntry
		if err := rows.StructScan(&e); err != nil {
			r.log.Warnf("scan schedule entry failed: %v", err)
			continue
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// saleRow flattens a sale and its frozen tax columns for scanning.
type saleRow struct {
	ID               string          `db:"id"`
	GrantID          string          `db:"grant_id"`
	SaleDate         time.Time       `db:"sale_date"`
	Shares           int64           `db:"shares"`
	SalePrice        decimal.Decimal `db:"sale_price"`
	Notes            string          `db:"notes"`
	RecordedAt       time.Time       `db:"recorded_at"`
	OriginalValue    decimal.Decimal `db:"original_value"`
	SaleValue        decimal.Decimal `db:"sale_value"`
	Profit           decimal.Decimal `db:"profit"`
	WageIncomeTax    decimal.Decimal `db:"wage_income_tax"`
	CapitalGainsTax  decimal.Decimal `db:"capital_gains_tax"`
	TotalTax         decimal.Decimal `db:"total_tax"`
	NetValue         decimal.Decimal `db:"net_value"`
	EffectiveTaxRate decimal.Decimal `db:"effective_tax_rate"`
	IsLongTerm       bool            `db:"is_long_term"`
}

func (row saleRow) toSale() models.Sale {
	return models.Sale{
		ID:         row.ID,
		GrantID:    row.GrantID,
		SaleDate:   row.SaleDate,
		Shares:     row.Shares,
		SalePrice:  row.SalePrice,
		Notes:      row.Notes,
		RecordedAt: row.RecordedAt,
		Tax: models.TaxBreakdown{
			OriginalValue:    row.OriginalValue,
			SaleValue:        row.SaleValue,
			Profit:           row.Profit,
			WageIncomeTax:    row.WageIncomeTax,
			CapitalGainsTax:  row.CapitalGainsTax,
			TotalTax:         row.TotalTax,
			NetValue:         row.NetValue,
			EffectiveTaxRate: row.EffectiveTaxRate,
			IsLongTerm:       row.IsLongTerm,
		},
	}
}

const saleColumns = `id, grant_id, sale_date, shares, sale_price, notes, recorded_at, original_value, sale_value, profit, wage_income_tax, capital_gains_tax, total_tax, net_value, effective_tax_rate, is_long_term`

func (r *Repo) GetSale(ctx context.Context, id string) (models.Sale, error) {
	var row saleRow
	err := r.db.GetContext(ctx, &row, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Sale{}, ErrSaleNotFound
	}
	if err != nil {
		return models.Sale{}, err
	}
	return row.toSale(), nil
}

func (r *Repo) GetSales(ctx context.Context, grantID string) ([]models.Sale, error) {
	return r.getSales(ctx, r.db, grantID)
}

func (r *Repo) getSales(ctx context.Context, q sqlx.QueryerContext, grantID string) ([]models.Sale, error) {
	rows, err := q.QueryxContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE grant_id = $1 ORDER BY sale_date ASC, recorded_at ASC`, grantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []models.Sale{}
	for rows.Next() {
		var row saleRow
		if err := rows.StructScan(&row); err != nil {
			r.log.Warnf("scan sale failed: %v", err)
			continue
		}
		res = append(res, row.toSale())
	}
	return res, rows.Err()
}

// GrantUpdate carries the editable grant fields; nil means unchanged.
type GrantUpdate struct {
	Symbol      *string
	Name        *string
	Company     *string
	Notes       *string
	TotalValue  *decimal.Decimal
	GrantDate   *time.Time
	TotalShares *int64
	PlanID      *string
}

// unsafe reports whether the update touches fields that would invalidate
// recorded sales or the existing schedule's vested history.
func (u GrantUpdate) unsafe() bool {
	return u.GrantDate != nil || u.TotalShares != nil || u.PlanID != nil
}

// UpdateGrant applies a partial update. The schedule is regenerated only when
// shares, grant date or plan change, and those fields are rejected outright
// once the grant has recorded sales.
func (r *Repo) UpdateGrant(ctx context.Context, id string, upd GrantUpdate) (models.Grant, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Grant{}, err
	}
	defer tx.Rollback()

	var g models.Grant
	err = tx.GetContext(ctx, &g, `SELECT id, symbol, name, company, grant_date, total_shares, total_value, plan_id, status, notes, created_at FROM grants WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Grant{}, ErrGrantNotFound
	}
	if err != nil {
		return models.Grant{}, err
	}

	if upd.unsafe() {
		var saleCount int
		if err := tx.GetContext(ctx, &saleCount, `SELECT COUNT(*) FROM sales WHERE grant_id = $1`, id); err != nil {
			return models.Grant{}, err
		}
		if saleCount > 0 {
			return models.Grant{}, ErrGrantHasSales
		}
	}

	if upd.Symbol != nil {
		g.Symbol = *upd.Symbol
	}
	if upd.Name != nil {
		g.Name = *upd.Name
	}
	if upd.Company != nil {
		g.Company = *upd.Company
	}
	if upd.Notes != nil {
		g.Notes = *upd.Notes
	}
	if upd.TotalValue != nil {
		if !upd.TotalValue.IsPositive() {
			return models.Grant{}, &vesting.ErrInvalidGrantInput{Field: "total_value", Reason: "must be positive"}
		}
		g.TotalValue = *upd.TotalValue
	}
	if upd.GrantDate != nil {
		g.GrantDate = *upd.GrantDate
	}
	if upd.TotalShares != nil {
		g.TotalShares = *upd.TotalShares
	}
	if upd.PlanID != nil {
		g.PlanID = *upd.PlanID
	}

	if upd.unsafe() {
		entries, err := r.scheduler.Generate(g.GrantDate, g.TotalShares, g.PlanID)
		if err != nil {
			return models.Grant{}, err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM vesting_schedule_entries WHERE grant_id = $1`, id); err != nil {
			return models.Grant{}, err
		}
		if err := insertScheduleTx(ctx, tx, id, entries); err != nil {
			return models.Grant{}, err
		}
	}

	q := `UPDATE grants SET symbol=$2, name=$3, company=$4, grant_date=$5, total_shares=$6, total_value=$7::numeric, plan_id=$8, notes=$9 WHERE id=$1`
	if _, err := tx.ExecContext(ctx, q, id, g.Symbol, g.Name, g.Company, g.GrantDate, g.TotalShares, g.TotalValue.String(), g.PlanID, g.Notes); err != nil {
		return models.Grant{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.Grant{}, err
	}
	return g, nil
}

// PreviewPlanChange reports the plan-change impact without mutating anything.
func (r *Repo) PreviewPlanChange(ctx context.Context, grantID, newPlanID string, asOf time.Time) (models.PlanChangePreview, error) {
	g, err := r.GetGrant(ctx, grantID)
	if err != nil {
		return models.PlanChangePreview{}, err
	}
	schedule, err := r.GetSchedule(ctx, grantID)
	if err != nil {
		return models.PlanChangePreview{}, err
	}
	return r.scheduler.PreviewPlanChange(g, schedule, newPlanID, asOf)
}

// ChangePlan switches the grant's vesting plan, preserving vested entries and
// rewriting the unvested remainder, all in one transaction.
func (r *Repo) ChangePlan(ctx context.Context, grantID, newPlanID string, asOf time.Time) ([]models.ScheduleEntry, models.PlanChangePreview, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, models.PlanChangePreview{}, err
	}
	defer tx.Rollback()

	var g models.Grant
	err = tx.GetContext(ctx, &g, `SELECT id, symbol, name, company, grant_date, total_shares, total_value, plan_id, status, notes, created_at FROM grants WHERE id = $1 FOR UPDATE`, grantID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.PlanChangePreview{}, ErrGrantNotFound
	}
	if err != nil {
		return nil, models.PlanChangePreview{}, err
	}

	schedule, err := r.getSchedule(ctx, tx, grantID)
	if err != nil {
		return nil, models.PlanChangePreview{}, err
	}

	entries, preview, err := r.scheduler.ChangePlan(g, schedule, newPlanID, asOf)
	if err != nil {
		return nil, models.PlanChangePreview{}, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM vesting_schedule_entries WHERE grant_id = $1`, grantID); err != nil {
		return nil, models.PlanChangePreview{}, err
	}
	if err := insertScheduleTx(ctx, tx, grantID, entries); err != nil {
		return nil, models.PlanChangePreview{}, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE grants SET plan_id = $2 WHERE id = $1`, grantID, newPlanID); err != nil {
		return nil, models.PlanChangePreview{}, err
	}

	if err := tx.Commit(); err != nil {
		return nil, models.PlanChangePreview{}, err
	}
	return entries, preview, nil
}

// RecordSale re-validates availability against the persisted sales while
// holding the grant row lock, so two concurrent submissions cannot both pass
// a stale check and oversell. The tax breakdown is computed once here and
// frozen into the row.
func (r *Repo) RecordSale(ctx context.Context, grantID string, saleDate time.Time, shares int64, salePrice decimal.Decimal, notes string, asOf time.Time) (models.Sale, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Sale{}, err
	}
	defer tx.Rollback()

	var g models.Grant
	err = tx.GetContext(ctx, &g, `SELECT id, symbol, name, company, grant_date, total_shares, total_value, plan_id, status, notes, created_at FROM grants WHERE id = $1 FOR UPDATE`, grantID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Sale{}, ErrGrantNotFound
	}
	if err != nil {
		return models.Sale{}, err
	}

	schedule, err := r.getSchedule(ctx, tx, grantID)
	if err != nil {
		return models.Sale{}, err
	}
	priorSales, err := r.getSales(ctx, tx, grantID)
	if err != nil {
		return models.Sale{}, err
	}

	if err := ledger.ValidateSale(shares, salePrice, schedule, priorSales, asOf); err != nil {
		return models.Sale{}, err
	}

	breakdown := r.taxCalc.Calculate(tax.Input{
		GrantDate:          g.GrantDate,
		SaleDate:           saleDate,
		Shares:             shares,
		SalePrice:          salePrice,
		GrantPricePerShare: g.PricePerShare(),
	})

	sale := models.Sale{
		ID:        uuid.NewString(),
		GrantID:   grantID,
		SaleDate:  saleDate,
		Shares:    shares,
		SalePrice: salePrice,
		Notes:     notes,
		Tax:       breakdown,
	}

	q := `INSERT INTO sales (id, grant_id, sale_date, shares, sale_price, notes, recorded_at,
	        original_value, sale_value, profit, wage_income_tax, capital_gains_tax, total_tax, net_value, effective_tax_rate, is_long_term)
	      VALUES ($1, $2, $3, $4, $5::numeric, $6, now(), $7::numeric, $8::numeric, $9::numeric, $10::numeric, $11::numeric, $12::numeric, $13::numeric, $14::numeric, $15)
	      RETURNING recorded_at`
	if err := tx.QueryRowContext(ctx, q, sale.ID, grantID, saleDate, shares, salePrice.String(), notes,
		breakdown.OriginalValue.String(), breakdown.SaleValue.String(), breakdown.Profit.String(),
		breakdown.WageIncomeTax.String(), breakdown.CapitalGainsTax.String(), breakdown.TotalTax.String(),
		breakdown.NetValue.String(), breakdown.EffectiveTaxRate.String(), breakdown.IsLongTerm).Scan(&sale.RecordedAt); err != nil {
		return models.Sale{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.Sale{}, err
	}
	return sale, nil
}

// DeleteGrant removes a grant and cascades to its schedule and sales. When
// sale records exist the caller must pass confirm, acknowledging their loss.
func (r *Repo) DeleteGrant(ctx context.Context, id string, confirm bool) error {
	var saleCount int
	if err := r.db.GetContext(ctx, &saleCount, `SELECT COUNT(*) FROM sales WHERE grant_id = $1`, id); err != nil {
		return err
	}
	if saleCount > 0 && !confirm {
		return ErrConfirmRequired
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM grants WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrGrantNotFound
	}
	return nil
}

// DeleteSale removes one sale record. The vesting schedule is untouched.
func (r *Repo) DeleteSale(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrSaleNotFound
	}
	return nil
}

func (r *Repo) GetLatestPrice(ctx context.Context, symbol string) (decimal.Decimal, time.Time, error) {
	var priceStr string
	var ts time.Time
	if err := r.db.QueryRowContext(ctx, `SELECT price, timestamp FROM price_history WHERE symbol = $1 ORDER BY timestamp DESC LIMIT 1`, symbol).Scan(&priceStr, &ts); err != nil {
		return decimal.Zero, time.Time{}, err
	}
	p, err := decimal.NewFromString(priceStr)
	if err != nil {
		return decimal.Zero, time.Time{}, err
	}
	return p, ts, nil
}

func (r *Repo) UpsertPrice(ctx context.Context, symbol string, price decimal.Decimal, ts time.Time) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO price_history (symbol, price, timestamp) VALUES ($1, $2::numeric, $3)`, symbol, price.StringFixed(4), ts)
	return err
}

// GetAllSymbols lists the distinct stock symbols across grants, the universe
// the price refresher keeps warm.
func (r *Repo) GetAllSymbols(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT DISTINCT symbol FROM grants`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			r.log.Warnf("scan symbol failed: %v", err)
			continue
		}
		res = append(res, s)
	}
	return res, rows.Err()
}
