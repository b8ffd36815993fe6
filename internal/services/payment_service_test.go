package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupPaymentTest(t *testing.T) (*PaymentService, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	return NewPaymentService(gdb, nil, false, nil), mock
}

func transactionColumns() []string {
	return []string{"id", "created_at", "updated_at", "tracking_id", "merchant_reference", "callback_data", "notification_type", "order_id"}
}

func TestHandleIPNMissingTrackingID(t *testing.T) {
	svc, mock := setupPaymentTest(t)

	err := svc.HandleIPN(context.Background(), IPNPayload{
		OrderMerchantReference: "M1",
		OrderNotificationType:  "IPNCHANGE",
	})

	assert.ErrorIs(t, err, ErrMissingTrackingID)
	// Rejected before any store access.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleIPNFirstDelivery(t *testing.T) {
	svc, mock := setupPaymentTest(t)

	mock.ExpectQuery(`SELECT \* FROM "payment_transactions" WHERE tracking_id = \$1`).
		WithArgs("T1", 1).
		WillReturnRows(sqlmock.NewRows(transactionColumns()))
	mock.ExpectExec(`INSERT INTO "payment_transactions"`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := svc.HandleIPN(context.Background(), IPNPayload{
		OrderTrackingID:        "T1",
		OrderMerchantReference: "M1",
		OrderNotificationType:  "IPNCHANGE",
	})

	// No prior record means no order linkage; no order update is attempted.
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleIPNRedeliveryUnlinked(t *testing.T) {
	svc, mock := setupPaymentTest(t)

	now := time.Now()
	mock.ExpectQuery(`SELECT \* FROM "payment_transactions" WHERE tracking_id = \$1`).
		WithArgs("T1", 1).
		WillReturnRows(sqlmock.NewRows(transactionColumns()).
			AddRow(uuid.NewString(), now, now, "T1", "M1", []byte(`{}`), "IPNCHANGE", nil))
	mock.ExpectExec(`INSERT INTO "payment_transactions"`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := svc.HandleIPN(context.Background(), IPNPayload{
		OrderTrackingID:        "T1",
		OrderMerchantReference: "M1",
		OrderNotificationType:  "IPNCHANGE",
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleIPNLinkedOrderUpdated(t *testing.T) {
	svc, mock := setupPaymentTest(t)

	orderID := uuid.New()
	now := time.Now()
	mock.ExpectQuery(`SELECT \* FROM "payment_transactions" WHERE tracking_id = \$1`).
		WithArgs("T1", 1).
		WillReturnRows(sqlmock.NewRows(transactionColumns()).
			AddRow(uuid.NewString(), now, now, "T1", "M1", []byte(`{}`), "IPNCHANGE", orderID.String()))
	mock.ExpectExec(`INSERT INTO "payment_transactions"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "orders" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := svc.HandleIPN(context.Background(), IPNPayload{
		OrderTrackingID:        "T1",
		OrderMerchantReference: "M1",
		OrderNotificationType:  "IPNCHANGE",
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleIPNOrderUpdateFailureIsSwallowed(t *testing.T) {
	svc, mock := setupPaymentTest(t)

	orderID := uuid.New()
	now := time.Now()
	mock.ExpectQuery(`SELECT \* FROM "payment_transactions" WHERE tracking_id = \$1`).
		WithArgs("T1", 1).
		WillReturnRows(sqlmock.NewRows(transactionColumns()).
			AddRow(uuid.NewString(), now, now, "T1", "M1", []byte(`{}`), "IPNCHANGE", orderID.String()))
	mock.ExpectExec(`INSERT INTO "payment_transactions"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "orders" SET`).
		WillReturnError(errors.New("orders table locked"))

	err := svc.HandleIPN(context.Background(), IPNPayload{
		OrderTrackingID:        "T1",
		OrderMerchantReference: "M1",
		OrderNotificationType:  "IPNCHANGE",
	})

	// The notification was recorded; downstream bookkeeping failures stay local.
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleIPNUpsertFailureIsFatal(t *testing.T) {
	svc, mock := setupPaymentTest(t)

	mock.ExpectQuery(`SELECT \* FROM "payment_transactions" WHERE tracking_id = \$1`).
		WithArgs("T1", 1).
		WillReturnRows(sqlmock.NewRows(transactionColumns()))
	mock.ExpectExec(`INSERT INTO "payment_transactions"`).
		WillReturnError(errors.New("disk full"))

	err := svc.HandleIPN(context.Background(), IPNPayload{OrderTrackingID: "T1"})

	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLinkOrder(t *testing.T) {
	svc, mock := setupPaymentTest(t)

	mock.ExpectExec(`INSERT INTO "payment_transactions" .* ON CONFLICT \("tracking_id"\) DO UPDATE`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := svc.LinkOrder(context.Background(), "T1", "#42", uuid.New())

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
