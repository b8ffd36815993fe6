package models

// Category groups bakery products (breads, pastries, cakes, ...).
type Category struct {
	BaseModel
	Name         string    `json:"name"`
	Slug         string    `gorm:"uniqueIndex" json:"slug"`
	Subtitle     string    `json:"subtitle"`
	Description  string    `json:"description"`
	HeroImage    string    `json:"hero_image"`
	CardImage    string    `json:"card_image"`
	DisplayOrder int       `json:"display_order"`
	ProductCount int       `json:"product_count"`
	Products     []Product `json:"products,omitempty"`
}
