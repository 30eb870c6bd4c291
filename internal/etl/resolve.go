package etl

import (
	"github.com/shopspring/decimal"

	"github.com/yungbote/marketlake/internal/domain/listings"
)

// fieldSource yields one view of a payload, or nil when the payload does
// not carry that shape.
type fieldSource func(p listings.Payload) *listings.ListingFields

// resolutionOrder is tried front to back for every field: the rich content
// first, the flat top level second.
var resolutionOrder = []fieldSource{
	func(p listings.Payload) *listings.ListingFields { return p.Rich },
	func(p listings.Payload) *listings.ListingFields { return &p.Flat },
}

// firstOf returns the first non-missing value pick finds across the
// resolution order.
func firstOf[T any](p listings.Payload, pick func(f *listings.ListingFields) *T) *T {
	for _, src := range resolutionOrder {
		f := src(p)
		if f == nil {
			continue
		}
		if v := pick(f); v != nil {
			return v
		}
	}
	return nil
}

func flexString(v *listings.FlexString) *string {
	if v == nil {
		return nil
	}
	s := v.String()
	return &s
}

// ResolveProduct builds the bronze row for one search object. Fields the
// payload does not carry stay nil.
func ResolveProduct(day string, p listings.Payload) listings.BronzeProduct {
	out := listings.BronzeProduct{Date: day, ProductID: p.ID}

	out.CategoryID = firstOf(p, func(f *listings.ListingFields) *int64 {
		if f.CategoryID == nil {
			return nil
		}
		v := int64(*f.CategoryID)
		return &v
	})
	out.UserID = firstOf(p, func(f *listings.ListingFields) *string {
		if f.User == nil {
			return nil
		}
		return flexString(f.User.ID)
	})
	out.CreatedAt = firstOf(p, func(f *listings.ListingFields) *string {
		return flexString(f.CreationDate)
	})
	out.Price = firstOf(p, func(f *listings.ListingFields) *decimal.Decimal {
		if f.Price == nil {
			return nil
		}
		v := f.Price.Amount
		return &v
	})
	out.Currency = firstOf(p, func(f *listings.ListingFields) *string {
		if f.Currency != nil {
			return f.Currency
		}
		if f.Price != nil && f.Price.Currency != "" {
			c := f.Price.Currency
			return &c
		}
		return nil
	})
	out.Title = firstOf(p, func(f *listings.ListingFields) *string { return f.Title })
	// Description falls back to storytelling inside each shape before the
	// next shape is tried.
	out.Description = firstOf(p, func(f *listings.ListingFields) *string {
		if f.Description != nil {
			return f.Description
		}
		return f.Storytelling
	})
	out.WebSlug = firstOf(p, func(f *listings.ListingFields) *string { return f.WebSlug })
	out.CountryCode = firstOf(p, func(f *listings.ListingFields) *string {
		if f.Location == nil {
			return nil
		}
		return f.Location.CountryCode
	})
	out.City = firstOf(p, func(f *listings.ListingFields) *string {
		if f.Location == nil {
			return nil
		}
		return f.Location.City
	})
	out.PostalCode = firstOf(p, func(f *listings.ListingFields) *string {
		if f.Location == nil {
			return nil
		}
		return flexString(f.Location.PostalCode)
	})
	return out
}
