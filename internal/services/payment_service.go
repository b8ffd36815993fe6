package services

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/bakehouse/internal/models"
)

// ErrMissingTrackingID rejects IPN deliveries without an OrderTrackingId
// before any store access happens.
var ErrMissingTrackingID = errors.New("ipn payload missing OrderTrackingId")

// IPNPayload is the notification body as delivered by PesaPal.
type IPNPayload struct {
	OrderTrackingID        string `json:"OrderTrackingId"`
	OrderMerchantReference string `json:"OrderMerchantReference"`
	OrderNotificationType  string `json:"OrderNotificationType"`
}

// PaymentService reconciles asynchronous gateway notifications against locally
// tracked transactions and their orders.
type PaymentService struct {
	db        *gorm.DB
	pesapal   *PesapalService
	verifyIPN bool
	telegram  *TelegramService
}

// NewPaymentService constructs a PaymentService. When verifyIPN is set the
// order status is confirmed against the gateway instead of trusting the
// webhook's arrival alone.
func NewPaymentService(db *gorm.DB, pesapal *PesapalService, verifyIPN bool, telegram *TelegramService) *PaymentService {
	return &PaymentService{db: db, pesapal: pesapal, verifyIPN: verifyIPN, telegram: telegram}
}

// LinkOrder records the order linkage for a gateway tracking id. It is the
// checkout flow's post-submission hook and the only writer of order_id; the
// IPN path never invents a linkage.
func (s *PaymentService) LinkOrder(ctx context.Context, trackingID, merchantRef string, orderID uuid.UUID) error {
	txn := models.PaymentTransaction{
		TrackingID:        trackingID,
		MerchantReference: merchantRef,
		OrderID:           &orderID,
	}

	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tracking_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"merchant_reference", "order_id", "updated_at"}),
		}).
		Create(&txn).Error
}

// HandleIPN processes one webhook delivery: upsert the transaction row keyed
// by tracking id, then update the linked order's payment status when a
// linkage is already known. A missing linkage is not an error; the first
// notification for a transaction routinely arrives unlinked. Order update
// failures are logged, never surfaced: the gateway only cares that the
// notification was received.
func (s *PaymentService) HandleIPN(ctx context.Context, payload IPNPayload) error {
	trackingID := strings.TrimSpace(payload.OrderTrackingID)
	if trackingID == "" {
		return ErrMissingTrackingID
	}

	var prior models.PaymentTransaction
	havePrior := true
	if err := s.db.WithContext(ctx).
		Where("tracking_id = ?", trackingID).
		First(&prior).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		havePrior = false
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	txn := models.PaymentTransaction{
		TrackingID:        trackingID,
		MerchantReference: payload.OrderMerchantReference,
		CallbackData:      raw,
		NotificationType:  payload.OrderNotificationType,
	}

	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tracking_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"merchant_reference", "callback_data", "notification_type", "updated_at"}),
		}).
		Create(&txn).Error; err != nil {
		return err
	}

	if !havePrior || prior.OrderID == nil {
		return nil
	}

	status, err := s.resolveOrderStatus(ctx, trackingID)
	if err != nil {
		log.Printf("[Webhook] status verification failed for tracking id %s: %v", trackingID, err)
		return nil
	}

	if err := s.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", *prior.OrderID).
		Updates(map[string]any{
			"payment_status": status,
			"updated_at":     time.Now(),
		}).Error; err != nil {
		log.Printf("[Webhook] order %s status update failed: %v", prior.OrderID, err)
		return nil
	}

	if status == models.PaymentStatusCompleted && s.telegram != nil {
		s.notifyPaymentConfirmed(ctx, *prior.OrderID)
	}

	return nil
}

// resolveOrderStatus decides what payment status a notification implies. The
// trust-webhook policy marks the order completed on mere arrival, matching
// the behavior the storefront always had; the verify policy asks the gateway.
func (s *PaymentService) resolveOrderStatus(ctx context.Context, trackingID string) (string, error) {
	if !s.verifyIPN {
		return models.PaymentStatusCompleted, nil
	}

	status, err := s.pesapal.GetTransactionStatus(ctx, trackingID)
	if err != nil {
		return "", err
	}

	switch strings.ToUpper(status.PaymentStatusDescription) {
	case "COMPLETED":
		return models.PaymentStatusCompleted, nil
	case "FAILED", "INVALID":
		return models.PaymentStatusFailed, nil
	case "REVERSED":
		return models.PaymentStatusReversed, nil
	default:
		return models.PaymentStatusPending, nil
	}
}

func (s *PaymentService) notifyPaymentConfirmed(ctx context.Context, orderID uuid.UUID) {
	var order models.Order
	if err := s.db.WithContext(ctx).First(&order, "id = ?", orderID).Error; err != nil {
		log.Printf("[Webhook] order %s lookup for notification failed: %v", orderID, err)
		return
	}

	go func() {
		if err := s.telegram.NotifyPaymentConfirmed(PaymentNotification{
			OrderNumber: order.OrderNumber,
			Amount:      order.TotalAmount,
			Currency:    order.Currency,
		}); err != nil {
			log.Printf("[Webhook] Telegram payment notification failed: %v", err)
		}
	}()
}
