package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/bakehouse/internal/services"
)

func setupWebhookTest(t *testing.T) (*fiber.App, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	payments := services.NewPaymentService(gdb, nil, false, nil)
	handler := NewPaymentHandler(gdb, nil, payments)

	app := fiber.New()
	webhook := app.Group("/api/payments/webhook", cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))
	webhook.Post("/", handler.Webhook)

	return app, mock
}

func postWebhook(t *testing.T, app *fiber.App, payload map[string]string) (int, map[string]any) {
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/api/payments/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp.StatusCode, decoded
}

func TestWebhookFirstNotification(t *testing.T) {
	app, mock := setupWebhookTest(t)

	mock.ExpectQuery(`SELECT \* FROM "payment_transactions" WHERE tracking_id = \$1`).
		WithArgs("T1", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(`INSERT INTO "payment_transactions"`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	status, body := postWebhook(t, app, map[string]string{
		"OrderTrackingId":        "T1",
		"OrderMerchantReference": "M1",
		"OrderNotificationType":  "IPNCHANGE",
	})

	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookMissingTrackingID(t *testing.T) {
	app, mock := setupWebhookTest(t)

	status, body := postWebhook(t, app, map[string]string{
		"OrderMerchantReference": "M1",
	})

	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Contains(t, body["error"], "OrderTrackingId")
	// Store untouched: no queries were expected, none may have run.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookPersistenceFailure(t *testing.T) {
	app, mock := setupWebhookTest(t)

	mock.ExpectQuery(`SELECT \* FROM "payment_transactions" WHERE tracking_id = \$1`).
		WithArgs("T1", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(`INSERT INTO "payment_transactions"`).
		WillReturnError(errors.New("connection reset"))

	status, body := postWebhook(t, app, map[string]string{
		"OrderTrackingId": "T1",
	})

	assert.Equal(t, fiber.StatusInternalServerError, status)
	assert.Equal(t, "persistence failure", body["error"])
}

func TestWebhookIdempotentRedelivery(t *testing.T) {
	app, mock := setupWebhookTest(t)

	for i := 0; i < 2; i++ {
		mock.ExpectQuery(`SELECT \* FROM "payment_transactions" WHERE tracking_id = \$1`).
			WithArgs("T1", 1).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectExec(`INSERT INTO "payment_transactions"`).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}

	payload := map[string]string{
		"OrderTrackingId":        "T1",
		"OrderMerchantReference": "M1",
		"OrderNotificationType":  "IPNCHANGE",
	}

	status1, _ := postWebhook(t, app, payload)
	status2, _ := postWebhook(t, app, payload)

	assert.Equal(t, fiber.StatusOK, status1)
	assert.Equal(t, fiber.StatusOK, status2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookCORSPreflight(t *testing.T) {
	app, _ := setupWebhookTest(t)

	req := httptest.NewRequest("OPTIONS", "/api/payments/webhook", nil)
	req.Header.Set("Origin", "https://dashboard.pesapal.example")
	req.Header.Set("Access-Control-Request-Method", "POST")

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
