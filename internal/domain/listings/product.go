package listings

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// RawListing is the stored per-(date, category) search download.
type RawListing struct {
	Date          string            `json:"date"`
	CategoryID    int64             `json:"category_id"`
	SearchObjects []json.RawMessage `json:"search_objects"`
}

// BronzeProduct is one normalized listing for a date. Nil pointers are nulls.
type BronzeProduct struct {
	Date        string
	ProductID   string
	CategoryID  *int64
	UserID      *string
	CreatedAt   *string
	Price       *decimal.Decimal
	Currency    *string
	Title       *string
	Description *string
	WebSlug     *string
	CountryCode *string
	City        *string
	PostalCode  *string
}

// SilverProduct is a bronze listing enriched with its category.
type SilverProduct struct {
	BronzeProduct
	CategoryName      *string
	CategoryHierarchy *string
	DaysSinceCreation *int64
}
