package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"vestfolio/internal/database"
	"vestfolio/internal/ledger"
	"vestfolio/internal/models"
	"vestfolio/internal/service"
	"vestfolio/internal/tax"
	"vestfolio/internal/vesting"
)

type Handler struct {
	repo     *database.Repo
	priceSvc service.PriceProvider
	log      *logrus.Logger
}

func NewHandler(r *database.Repo, p service.PriceProvider, log *logrus.Logger) *Handler {
	return &Handler{repo: r, priceSvc: p, log: log}
}

// writeError maps domain rejections onto HTTP statuses. Validation errors are
// the client's fault; everything unrecognized is a 500.
func (h *Handler) writeError(c *gin.Context, err error) {
	var invalidGrant *vesting.ErrInvalidGrantInput
	var unknownPlan *vesting.ErrUnknownPlan
	var invalidSale *ledger.ErrInvalidSaleInput
	var insufficient *ledger.ErrInsufficientShares

	switch {
	case errors.As(err, &invalidGrant), errors.As(err, &unknownPlan), errors.As(err, &invalidSale):
		h.log.Warnf("rejected request: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &insufficient):
		h.log.Warnf("rejected sale: %v", err)
		c.JSON(http.StatusConflict, gin.H{
			"error":            err.Error(),
			"requested_shares": insufficient.Requested,
			"vested_shares":    insufficient.Vested,
			"sold_shares":      insufficient.Sold,
			"available_shares": insufficient.Available,
		})
	case errors.Is(err, vesting.ErrAlreadyVested),
		errors.Is(err, database.ErrGrantHasSales),
		errors.Is(err, database.ErrConfirmRequired):
		h.log.Warnf("rejected request: %v", err)
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, database.ErrGrantNotFound), errors.Is(err, database.ErrSaleNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.log.Errorf("request failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
	}
}

func (h *Handler) ListPlans(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"plans": h.repo.Scheduler().Plans()})
}

type CreateGrantRequest struct {
	Symbol      string    `json:"symbol" binding:"required"`
	Name        string    `json:"name"`
	Company     string    `json:"company"`
	GrantDate   time.Time `json:"grant_date" binding:"required"`
	TotalShares int64     `json:"total_shares" binding:"required"`
	TotalValue  string    `json:"total_value" binding:"required"`
	PlanID      string    `json:"plan_id"`
	Notes       string    `json:"notes"`
}

func (h *Handler) CreateGrant(c *gin.Context) {
	var req CreateGrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warnf("invalid post body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	totalValue, err := decimal.NewFromString(req.TotalValue)
	if err != nil {
		h.log.Warnf("invalid total_value: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid total_value format"})
		return
	}

	grant, entries, err := h.repo.CreateGrant(context.Background(), models.Grant{
		Symbol:      req.Symbol,
		Name:        req.Name,
		Company:     req.Company,
		GrantDate:   req.GrantDate,
		TotalShares: req.TotalShares,
		TotalValue:  totalValue,
		PlanID:      req.PlanID,
		Notes:       req.Notes,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	ledger.MarkVested(entries, time.Now().UTC())
	c.JSON(http.StatusCreated, gin.H{"grant": grant, "schedule": entries})
}

func (h *Handler) ListGrants(c *gin.Context) {
	grants, err := h.repo.ListGrants(context.Background())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"grants": grants})
}

func (h *Handler) GetGrant(c *gin.Context) {
	ctx := context.Background()
	id := c.Param("id")
	grant, err := h.repo.GetGrant(ctx, id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	schedule, err := h.repo.GetSchedule(ctx, id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	sales, err := h.repo.GetSales(ctx, id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	now := time.Now().UTC()
	ledger.MarkVested(schedule, now)
	price, _, err := h.priceSvc.GetPrice(ctx, grant.Symbol)
	if err != nil {
		h.log.Warnf("no price for %s: %v", grant.Symbol, err)
		price = decimal.Zero
	}
	position := ledger.Compute(grant, schedule, sales, now, price)
	if position.UnvestedShares == 0 && grant.Status == models.GrantActive {
		grant.Status = models.GrantFullyVested
	}

	c.JSON(http.StatusOK, gin.H{"grant": grant, "schedule": schedule, "sales": sales, "position": position})
}

type UpdateGrantRequest struct {
	Symbol      *string    `json:"symbol"`
	Name        *string    `json:"name"`
	Company     *string    `json:"company"`
	Notes       *string    `json:"notes"`
	TotalValue  *string    `json:"total_value"`
	GrantDate   *time.Time `json:"grant_date"`
	TotalShares *int64     `json:"total_shares"`
	PlanID      *string    `json:"plan_id"`
}

func (h *Handler) UpdateGrant(c *gin.Context) {
	var req UpdateGrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warnf("invalid put body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	upd := database.GrantUpdate{
		Symbol:      req.Symbol,
		Name:        req.Name,
		Company:     req.Company,
		Notes:       req.Notes,
		GrantDate:   req.GrantDate,
		TotalShares: req.TotalShares,
		PlanID:      req.PlanID,
	}
	if req.TotalValue != nil {
		v, err := decimal.NewFromString(*req.TotalValue)
		if err != nil {
			h.log.Warnf("invalid total_value: %v", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid total_value format"})
			return
		}
		upd.TotalValue = &v
	}

	grant, err := h.repo.UpdateGrant(context.Background(), c.Param("id"), upd)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"grant": grant})
}

func (h *Handler) DeleteGrant(c *gin.Context) {
	confirm := c.Query("confirm") == "true"
	if err := h.repo.DeleteGrant(context.Background(), c.Param("id"), confirm); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *Handler) GetSchedule(c *gin.Context) {
	schedule, err := h.repo.GetSchedule(context.Background(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	ledger.MarkVested(schedule, time.Now().UTC())
	c.JSON(http.StatusOK, gin.H{"schedule": schedule})
}

type PlanChangeRequest struct {
	PlanID string `json:"plan_id" binding:"required"`
}

func (h *Handler) PreviewPlanChange(c *gin.Context) {
	var req PlanChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warnf("invalid post body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	preview, err := h.repo.PreviewPlanChange(context.Background(), c.Param("id"), req.PlanID, time.Now().UTC())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"preview": preview})
}

func (h *Handler) ChangePlan(c *gin.Context) {
	var req PlanChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warnf("invalid post body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	now := time.Now().UTC()
	entries, preview, err := h.repo.ChangePlan(context.Background(), c.Param("id"), req.PlanID, now)
	if err != nil {
		h.writeError(c, err)
		return
	}
	ledger.MarkVested(entries, now)
	c.JSON(http.StatusOK, gin.H{"schedule": entries, "impact": preview})
}

type RecordSaleRequest struct {
	SaleDate      time.Time `json:"sale_date" binding:"required"`
	Shares        int64     `json:"shares" binding:"required"`
	PricePerShare string    `json:"price_per_share" binding:"required"`
	Notes         string    `json:"notes"`
}

func (h *Handler) RecordSale(c *gin.Context) {
	var req RecordSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warnf("invalid post body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	price, err := decimal.NewFromString(req.PricePerShare)
	if err != nil {
		h.log.Warnf("invalid price_per_share: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid price_per_share format"})
		return
	}

	sale, err := h.repo.RecordSale(context.Background(), c.Param("id"), req.SaleDate, req.Shares, price, req.Notes, time.Now().UTC())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"sale": sale})
}

func (h *Handler) ListSales(c *gin.Context) {
	sales, err := h.repo.GetSales(context.Background(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sales": sales})
}

type TaxPreviewRequest struct {
	SaleDate  time.Time `json:"sale_date" binding:"required"`
	Shares    int64     `json:"shares" binding:"required"`
	SalePrice string    `json:"sale_price" binding:"required"`
}

// PreviewTax computes the tax breakdown for a prospective sale without
// persisting anything.
func (h *Handler) PreviewTax(c *gin.Context) {
	var req TaxPreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warnf("invalid post body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	price, err := decimal.NewFromString(req.SalePrice)
	if err != nil {
		h.log.Warnf("invalid sale_price: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sale_price format"})
		return
	}
	if req.Shares <= 0 || !price.IsPositive() {
		h.writeError(c, &ledger.ErrInvalidSaleInput{Field: "shares/sale_price", Reason: "must be positive"})
		return
	}

	grant, err := h.repo.GetGrant(context.Background(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	breakdown := h.repo.TaxCalculator().Calculate(tax.Input{
		GrantDate:          grant.GrantDate,
		SaleDate:           req.SaleDate,
		Shares:             req.Shares,
		SalePrice:          price,
		GrantPricePerShare: grant.PricePerShare(),
	})
	c.JSON(http.StatusOK, gin.H{"tax": breakdown})
}

func (h *Handler) DeleteSale(c *gin.Context) {
	if err := h.repo.DeleteSale(context.Background(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// GetPortfolio aggregates positions across all grants at current prices.
func (h *Handler) GetPortfolio(c *gin.Context) {
	ctx := context.Background()
	grants, err := h.repo.ListGrants(ctx)
	if err != nil {
		h.writeError(c, err)
		return
	}

	now := time.Now().UTC()
	positions := []models.Position{}
	totalValue := decimal.Zero
	totalGainLoss := decimal.Zero
	var totalShares, totalVested, totalAvailable int64
	for _, g := range grants {
		schedule, err := h.repo.GetSchedule(ctx, g.ID)
		if err != nil {
			h.writeError(c, err)
			return
		}
		sales, err := h.repo.GetSales(ctx, g.ID)
		if err != nil {
			h.writeError(c, err)
			return
		}
		price, _, err := h.priceSvc.GetPrice(ctx, g.Symbol)
		if err != nil {
			h.log.Warnf("no price for %s: %v", g.Symbol, err)
			price = decimal.Zero
		}
		pos := ledger.Compute(g, schedule, sales, now, price)
		positions = append(positions, pos)
		totalValue = totalValue.Add(pos.CurrentValue)
		totalGainLoss = totalGainLoss.Add(pos.GainLoss)
		totalShares += pos.TotalShares
		totalVested += pos.VestedShares
		totalAvailable += pos.AvailableShares
	}

	c.JSON(http.StatusOK, gin.H{
		"positions":              positions,
		"total_current_value":    totalValue.StringFixed(4),
		"total_gain_loss":        totalGainLoss.StringFixed(4),
		"total_shares":           totalShares,
		"total_vested_shares":    totalVested,
		"total_available_shares": totalAvailable,
	})
}
