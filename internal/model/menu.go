package model

import "time"

// ItemSource tags which source populated a menu item.
type ItemSource string

const (
	SourceNutritionix ItemSource = "nutritionix"
	SourceUSDA        ItemSource = "usda"
	SourceManual      ItemSource = "manual"
)

// Verification is the curation state of a menu item.
type Verification string

const (
	Unverified Verification = "unverified"
	Verified   Verification = "verified"
)

// MenuItem is a brand-wide nutrition-bearing product. (BrandID, Name) is unique.
type MenuItem struct {
	ID                 string       `json:"id"`
	BrandID            string       `json:"brandId"`
	Name               string       `json:"name"`
	Calories           int          `json:"calories"`
	ProteinG           int          `json:"proteinG"`
	DefaultPrice       *float64     `json:"defaultPrice,omitempty"`
	Source             ItemSource   `json:"source"`
	ExternalRef        string       `json:"externalRef,omitempty"`
	VerificationStatus Verification `json:"verificationStatus"`
	LastVerifiedAt     *time.Time   `json:"lastVerifiedAt,omitempty"`
	Notes              string       `json:"notes,omitempty"`
	UpdatedAt          time.Time    `json:"updatedAt"`
}

// PriceReport is a user-submitted price override for a (place, item) pair.
type PriceReport struct {
	PlaceID   string    `json:"placeId"`
	ItemID    string    `json:"itemId"`
	Price     float64   `json:"price"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Candidate is one (place, menu item) pair read for ranking, joined with the
// brand key and any local price report.
type Candidate struct {
	Place         Place
	BrandKey      string
	Item          MenuItem
	ReportPrice   *float64
	ReportUpdated *time.Time
}

// RankResult is one ranked row. Derived per request, never persisted.
type RankResult struct {
	Rank           int        `json:"rank"`
	PlaceID        string     `json:"placeId"`
	PlaceName      string     `json:"placeName"`
	BrandKey       string     `json:"brandKey"`
	ItemID         string     `json:"itemId"`
	ItemName       string     `json:"itemName"`
	Calories       int        `json:"calories"`
	ProteinG       int        `json:"proteinG"`
	Price          float64    `json:"price"`
	Score          float64    `json:"score"`
	Lat            *float64   `json:"lat,omitempty"`
	Lng            *float64   `json:"lng,omitempty"`
	DistanceKm     *float64   `json:"distanceKm,omitempty"`
	PriceUpdatedAt *time.Time `json:"priceUpdatedAt,omitempty"`
}
