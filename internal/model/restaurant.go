// Package model defines the domain types shared by the discovery, import,
// ranking and refresh components.
package model

import "time"

// Brand is a canonical restaurant chain identity.
type Brand struct {
	ID             string     `json:"id"`
	Key            string     `json:"key"`
	DisplayName    string     `json:"displayName"`
	LastImportedAt *time.Time `json:"lastImportedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// IsStale reports whether the brand's menu data is older than maxAge at now.
// A brand that was never imported is always stale.
func (b Brand) IsStale(now time.Time, maxAge time.Duration) bool {
	if b.LastImportedAt == nil {
		return true
	}
	return now.Sub(*b.LastImportedAt) > maxAge
}

// Place is one physical location of a Brand.
type Place struct {
	ID         string    `json:"id"`
	ExternalID string    `json:"externalId"`
	BrandID    string    `json:"brandId"`
	Name       string    `json:"name"`
	Lat        *float64  `json:"lat,omitempty"`
	Lng        *float64  `json:"lng,omitempty"`
	Street     string    `json:"street,omitempty"`
	City       string    `json:"city,omitempty"`
	State      string    `json:"state,omitempty"`
	Postcode   string    `json:"postcode,omitempty"`
	Source     string    `json:"source"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// HasCoordinates reports whether both latitude and longitude are known.
func (p Place) HasCoordinates() bool {
	return p.Lat != nil && p.Lng != nil
}

// StoreCounts holds row counts for each table, used by status reporting.
type StoreCounts struct {
	Brands       int64 `json:"brands"`
	Places       int64 `json:"places"`
	MenuItems    int64 `json:"menuItems"`
	PriceReports int64 `json:"priceReports"`
}
