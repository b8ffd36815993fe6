package models

import (
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Product is a single bakery item offered in the storefront.
type Product struct {
	BaseModel
	Slug             string         `gorm:"uniqueIndex" json:"slug"`
	Name             string         `json:"name"`
	ShortDescription string         `json:"short_description"`
	LongDescription  string         `json:"long_description"`
	Price            float64        `json:"price"`
	Currency         string         `json:"currency"`
	Image            string         `json:"image"`
	GalleryImages    pq.StringArray `gorm:"type:text[]" json:"gallery_images"`
	Allergens        pq.StringArray `gorm:"type:text[]" json:"allergens"`
	Ingredients      string         `json:"ingredients"`
	WeightGrams      int            `json:"weight_grams"`
	ServesPeople     int            `json:"serves_people"`
	LeadTimeHours    int            `json:"lead_time_hours"`
	IsAvailable      bool           `json:"is_available"`
	IsFeatured       bool           `json:"is_featured"`
	CategoryID       *uuid.UUID     `gorm:"type:uuid" json:"category_id"`
	Category         *Category      `json:"category,omitempty"`
}
