package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vestfolio/internal/database"
	"vestfolio/internal/tax"
	"vestfolio/internal/vesting"
)

type stubPrices struct {
	price decimal.Decimal
}

func (s *stubPrices) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, time.Time, error) {
	return s.price, time.Now().UTC(), nil
}

func (s *stubPrices) Start(ctx context.Context, interval time.Duration) {}

func newTestRouter(t *testing.T) (*gin.Engine, sqlmock.Sqlmock) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	db := sqlx.NewDb(mockDB, "sqlmock")
	scheduler := vesting.NewScheduler(vesting.NewRegistry())
	repo := database.New(db, logrus.New(), scheduler, tax.NewCalculator(tax.DefaultRates()))
	h := NewHandler(repo, &stubPrices{price: decimal.RequireFromString("30")}, logrus.New())

	r := gin.New()
	r.GET("/plans", h.ListPlans)
	r.POST("/grants/:id/tax-preview", h.PreviewTax)
	r.POST("/grants/:id/sales", h.RecordSale)
	r.DELETE("/grants/:id", h.DeleteGrant)
	return r, mock
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewBuffer(b)
	} else {
		reader = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

const grantID = "11111111-1111-1111-1111-111111111111"

var grantColumns = []string{"id", "symbol", "name", "company", "grant_date", "total_shares", "total_value", "plan_id", "status", "notes", "created_at"}

func TestListPlans(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(t, r, http.MethodGet, "/plans", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var res struct {
		Plans []struct {
			ID      string `json:"id"`
			Periods int    `json:"periods"`
		} `json:"plans"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Len(t, res.Plans, 4)
}

func TestPreviewTax(t *testing.T) {
	r, mock := newTestRouter(t)

	grantDate := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT (.+) FROM grants WHERE id = \$1`).
		WithArgs(grantID).
		WillReturnRows(sqlmock.NewRows(grantColumns).
			AddRow(grantID, "ACME", "", "", grantDate, int64(1000), "10000", "quarterly-5yr", "ACTIVE", "", grantDate))

	w := doJSON(t, r, http.MethodPost, "/grants/"+grantID+"/tax-preview", map[string]interface{}{
		"sale_date":  "2024-06-01T00:00:00Z",
		"shares":     100,
		"sale_price": "25",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var res struct {
		Tax struct {
			TotalTax   string `json:"total_tax"`
			NetValue   string `json:"net_value"`
			IsLongTerm bool   `json:"is_long_term"`
		} `json:"tax"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "1025", res.Tax.TotalTax)
	assert.Equal(t, "1475", res.Tax.NetValue)
	assert.True(t, res.Tax.IsLongTerm)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPreviewTax_GrantNotFound(t *testing.T) {
	r, mock := newTestRouter(t)

	mock.ExpectQuery(`SELECT (.+) FROM grants WHERE id = \$1`).
		WithArgs(grantID).
		WillReturnRows(sqlmock.NewRows(grantColumns))

	w := doJSON(t, r, http.MethodPost, "/grants/"+grantID+"/tax-preview", map[string]interface{}{
		"sale_date":  "2024-06-01T00:00:00Z",
		"shares":     100,
		"sale_price": "25",
	})
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestPreviewTax_InvalidInput(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/grants/"+grantID+"/tax-preview", map[string]interface{}{
		"sale_date":  "2024-06-01T00:00:00Z",
		"shares":     -5,
		"sale_price": "25",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecordSale_OversellMapsTo409(t *testing.T) {
	r, mock := newTestRouter(t)

	grantDate := time.Now().UTC().AddDate(-2, 0, -1)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM grants WHERE id = \$1 FOR UPDATE`).
		WithArgs(grantID).
		WillReturnRows(sqlmock.NewRows(grantColumns).
			AddRow(grantID, "ACME", "", "", grantDate, int64(1000), "10000", "quarterly-5yr", "ACTIVE", "", grantDate))
	mock.ExpectQuery(`SELECT (.+) FROM vesting_schedule_entries WHERE grant_id = \$1`).
		WithArgs(grantID).
		WillReturnRows(sqlmock.NewRows([]string{"grant_id", "period_index", "vest_date", "shares", "cliff_event"}).
			AddRow(grantID, 1, grantDate.AddDate(0, 3, 0), int64(100), false))
	mock.ExpectQuery(`SELECT (.+) FROM sales WHERE grant_id = \$1`).
		WithArgs(grantID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "grant_id", "sale_date", "shares", "sale_price", "notes", "recorded_at",
			"original_value", "sale_value", "profit", "wage_income_tax", "capital_gains_tax", "total_tax", "net_value", "effective_tax_rate", "is_long_term"}).
			AddRow("sale-1", grantID, grantDate, int64(40), "20", "", grantDate,
				"400", "800", "400", "260", "100", "360", "440", "0.45", true))
	mock.ExpectRollback()

	w := doJSON(t, r, http.MethodPost, "/grants/"+grantID+"/sales", map[string]interface{}{
		"sale_date":       time.Now().UTC().Format(time.RFC3339),
		"shares":          61,
		"price_per_share": "25",
	})
	require.Equal(t, http.StatusConflict, w.Code)

	var res struct {
		Error     string `json:"error"`
		Vested    int64  `json:"vested_shares"`
		Sold      int64  `json:"sold_shares"`
		Available int64  `json:"available_shares"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, int64(100), res.Vested)
	assert.Equal(t, int64(40), res.Sold)
	assert.Equal(t, int64(60), res.Available)
	assert.Contains(t, res.Error, "insufficient available shares")
}

func TestDeleteGrant_ConfirmRequiredMapsTo409(t *testing.T) {
	r, mock := newTestRouter(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM sales WHERE grant_id = \$1`).
		WithArgs(grantID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	w := doJSON(t, r, http.MethodDelete, "/grants/"+grantID, nil)
	require.Equal(t, http.StatusConflict, w.Code)
}
