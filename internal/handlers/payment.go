package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/bakehouse/internal/middleware"
	"github.com/example/bakehouse/internal/models"
	"github.com/example/bakehouse/internal/services"
	"github.com/example/bakehouse/internal/utils"
)

// PaymentHandler manages PesaPal checkout and IPN endpoints.
type PaymentHandler struct {
	db       *gorm.DB
	pesapal  *services.PesapalService
	payments *services.PaymentService
}

// NewPaymentHandler constructs PaymentHandler.
func NewPaymentHandler(db *gorm.DB, pesapal *services.PesapalService, payments *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{db: db, pesapal: pesapal, payments: payments}
}

type checkoutRequest struct {
	OrderID        string         `json:"order_id"`
	Description    string         `json:"description"`
	BillingAddress map[string]any `json:"billing_address"`
}

// submitOrderResponse picks the fields needed for local bookkeeping out of the
// gateway response; the full body is still passed through to the client.
type submitOrderResponse struct {
	OrderTrackingID   string `json:"order_tracking_id"`
	MerchantReference string `json:"merchant_reference"`
	RedirectURL       string `json:"redirect_url"`
}

// Checkout submits an order to PesaPal and links the returned tracking id to
// the local order.
func (h *PaymentHandler) Checkout(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req checkoutRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid order_id")
	}

	var order models.Order
	if err := h.db.First(&order, "id = ? AND user_id = ?", orderID, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "order not found")
		}
		return err
	}

	if order.PaymentStatus == models.PaymentStatusCompleted {
		return fiber.NewError(fiber.StatusConflict, "order already paid")
	}

	description := req.Description
	if description == "" {
		description = "Bakery order " + order.OrderNumber
	}

	caller := map[string]any{
		"id":          order.OrderNumber,
		"currency":    order.Currency,
		"amount":      order.TotalAmount,
		"description": description,
	}
	if req.BillingAddress != nil {
		caller["billing_address"] = req.BillingAddress
	}

	body, err := h.pesapal.SubmitOrder(c.Context(), caller)
	if err != nil {
		return writeGatewayError(c, err)
	}

	var parsed submitOrderResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		log.Printf("[Payment] unparseable gateway response for order %s: %v", order.ID, err)
	}

	if parsed.OrderTrackingID != "" {
		if err := h.payments.LinkOrder(c.Context(), parsed.OrderTrackingID, order.OrderNumber, order.ID); err != nil {
			log.Printf("[Payment] failed to link transaction %s to order %s: %v", parsed.OrderTrackingID, order.ID, err)
		}

		if err := h.db.Model(&models.Order{}).
			Where("id = ?", order.ID).
			Update("payment_status", models.PaymentStatusPending).Error; err != nil {
			log.Printf("[Payment] failed to mark order %s pending: %v", order.ID, err)
		}
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(body)
}

// Webhook receives asynchronous IPN deliveries from PesaPal. The gateway gets
// a 200 whenever the notification was recorded, even if local order
// bookkeeping lagged behind.
func (h *PaymentHandler) Webhook(c *fiber.Ctx) error {
	var payload services.IPNPayload
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "invalid payload",
			"message": "could not parse notification body",
		})
	}

	if err := h.payments.HandleIPN(c.Context(), payload); err != nil {
		if errors.Is(err, services.ErrMissingTrackingID) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   "missing OrderTrackingId",
				"message": "notification rejected",
			})
		}
		log.Printf("[Webhook] failed to record notification for tracking id %s: %v", payload.OrderTrackingID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "persistence failure",
			"message": "failed to record notification",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "notification received",
	})
}

// ListTransactions returns payment transaction history, optionally filtered.
func (h *PaymentHandler) ListTransactions(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	query := h.db.Model(&models.PaymentTransaction{})

	if trackingID := strings.TrimSpace(c.Query("tracking_id")); trackingID != "" {
		query = query.Where("tracking_id = ?", trackingID)
	}
	if orderID := strings.TrimSpace(c.Query("order_id")); orderID != "" {
		parsed, err := uuid.Parse(orderID)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid order_id")
		}
		query = query.Where("order_id = ?", parsed)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var txns []models.PaymentTransaction
	if err := query.
		Order("updated_at desc").
		Limit(pg.Limit).
		Offset(pg.Offset).
		Find(&txns).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    txns,
		"pagination": fiber.Map{
			"current_page":   pg.Page,
			"items_per_page": pg.Limit,
			"total_items":    total,
		},
	})
}

// writeGatewayError translates structured gateway failures into API responses
// without leaking raw errors to the client.
func writeGatewayError(c *fiber.Ctx, err error) error {
	var authErr *services.AuthError
	if errors.As(err, &authErr) {
		log.Printf("[Payment] gateway authentication failed: %v", authErr)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"success": false,
			"message": "payment processing failed",
			"details": "gateway authentication failed",
		})
	}

	var subErr *services.SubmissionError
	if errors.As(err, &subErr) {
		log.Printf("[Payment] gateway submission failed: %v", subErr)
		status := subErr.Status
		if status == 0 {
			status = fiber.StatusInternalServerError
		}
		details := subErr.Body
		if details == "" {
			details = subErr.Reason
		}
		return c.Status(status).JSON(fiber.Map{
			"success": false,
			"message": "payment processing failed",
			"details": details,
		})
	}

	return err
}
