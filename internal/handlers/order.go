package handlers

import (
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/bakehouse/internal/middleware"
	"github.com/example/bakehouse/internal/models"
	"github.com/example/bakehouse/internal/services"
	"github.com/example/bakehouse/internal/utils"
)

// OrderHandler manages order endpoints.
type OrderHandler struct {
	db       *gorm.DB
	telegram *services.TelegramService
}

// NewOrderHandler constructs OrderHandler.
func NewOrderHandler(db *gorm.DB, telegram *services.TelegramService) *OrderHandler {
	return &OrderHandler{db: db, telegram: telegram}
}

type orderProductRequest struct {
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	LineTotal   float64 `json:"line_total"`
}

type createOrderRequest struct {
	DeliveryMethod    string                `json:"delivery_method"`
	DeliveryAddressID string                `json:"delivery_address_id"`
	PickupTime        *time.Time            `json:"pickup_time"`
	Currency          string                `json:"currency"`
	Products          []orderProductRequest `json:"products"`
	DeliveryFee       float64               `json:"delivery_fee"`
	TotalAmount       float64               `json:"total_amount"`
	Notes             string                `json:"notes"`
}

// CreateOrder allows authenticated customers to place an order.
func (h *OrderHandler) CreateOrder(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req createOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if len(req.Products) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "order has no items")
	}

	order := models.Order{
		UserID:         userID,
		DeliveryMethod: req.DeliveryMethod,
		Currency:       req.Currency,
		DeliveryFee:    req.DeliveryFee,
		Notes:          req.Notes,
		Status:         "pending",
		PaymentStatus:  models.PaymentStatusUnpaid,
		PickupTime:     req.PickupTime,
		PlacedAt:       time.Now(),
	}

	if order.Currency == "" {
		order.Currency = "UGX"
	}

	if req.DeliveryMethod == "address_delivery" && req.DeliveryAddressID != "" {
		if id, err := uuid.Parse(req.DeliveryAddressID); err == nil {
			var address models.UserAddress
			if err := h.db.First(&address, "id = ? AND user_id = ?", id, userID).Error; err == nil {
				order.DeliveryAddressID = &address.ID
				order.DeliveryAddressLine = address.AddressLine
				order.DeliveryApartment = address.Apartment
				order.DeliveryCity = address.City
				order.DeliveryDistrict = address.District
			}
		}
	}

	var subtotal float64
	for _, p := range req.Products {
		lineTotal := p.LineTotal
		if lineTotal == 0 {
			lineTotal = p.UnitPrice * float64(p.Quantity)
		}

		item := models.OrderItem{
			ProductName: p.ProductName,
			Quantity:    p.Quantity,
			UnitPrice:   p.UnitPrice,
			LineTotal:   lineTotal,
		}

		if p.ProductID != "" {
			if id, err := uuid.Parse(p.ProductID); err == nil {
				item.ProductID = &id
			}
		}

		subtotal += item.LineTotal
		order.Items = append(order.Items, item)
	}

	order.Subtotal = subtotal
	order.TotalAmount = req.TotalAmount
	if order.TotalAmount == 0 {
		order.TotalAmount = subtotal + order.DeliveryFee
	}

	if order.OrderNumber == "" {
		order.OrderNumber = h.generateOrderNumber()
	}

	if err := h.db.Create(&order).Error; err != nil {
		return err
	}

	if h.telegram != nil {
		go h.notifyNewOrder(order, userID, req)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"id":             order.ID,
			"order_number":   order.OrderNumber,
			"status":         order.Status,
			"payment_status": order.PaymentStatus,
			"placed_at":      order.PlacedAt,
			"total":          order.TotalAmount,
			"currency":       order.Currency,
		},
	})
}

func (h *OrderHandler) notifyNewOrder(order models.Order, userID uuid.UUID, req createOrderRequest) {
	customerName := "Unknown"
	customerPhone := ""
	var user models.User
	if err := h.db.First(&user, "id = ?", userID).Error; err == nil {
		if user.DisplayName != "" {
			customerName = user.DisplayName
		}
		customerPhone = user.Phone
	}

	items := make([]services.OrderItemNotification, 0, len(req.Products))
	for _, p := range req.Products {
		items = append(items, services.OrderItemNotification{
			Name:     p.ProductName,
			Quantity: p.Quantity,
			Price:    p.UnitPrice,
		})
	}

	notification := services.OrderNotification{
		OrderNumber:    order.OrderNumber,
		Items:          items,
		TotalAmount:    order.TotalAmount,
		Currency:       order.Currency,
		CustomerName:   customerName,
		CustomerPhone:  customerPhone,
		DeliveryMethod: order.DeliveryMethod,
	}

	if err := h.telegram.NotifyNewOrder(notification); err != nil {
		log.Printf("[Order] Telegram notification failed: %v", err)
	}
}

// ListOrders returns orders for the authenticated customer.
func (h *OrderHandler) ListOrders(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	pg := utils.ParsePagination(c)
	query := h.db.Where("user_id = ?", userID).Model(&models.Order{})

	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if paymentStatus := c.Query("payment_status"); paymentStatus != "" {
		query = query.Where("payment_status = ?", paymentStatus)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var orders []models.Order
	if err := query.Preload("Items").
		Order("placed_at desc").
		Limit(pg.Limit).Offset(pg.Offset).
		Find(&orders).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    orders,
		"pagination": fiber.Map{
			"current_page":   pg.Page,
			"items_per_page": pg.Limit,
			"total_items":    total,
		},
	})
}

// GetOrder returns a single order for the authenticated customer.
func (h *OrderHandler) GetOrder(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var order models.Order
	if err := h.db.Preload("Items").
		First(&order, "id = ? AND user_id = ?", id, userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fiber.NewError(fiber.StatusNotFound, "order not found")
		}
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": order})
}

func (h *OrderHandler) generateOrderNumber() string {
	return fmt.Sprintf("#%d", time.Now().UnixNano()%1000000000)
}
