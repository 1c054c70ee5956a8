package client

import "github.com/shopspring/decimal"

// ApproverRef names a directory user and whether their step blocks approval.
type ApproverRef struct {
	UserID   string `json:"user_id"`
	Required bool   `json:"required"`
}

// CatalogProduct is the catalog service's product representation.
type CatalogProduct struct {
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Type          string          `json:"type"`
	Price         decimal.Decimal `json:"price"`
	MarginPercent decimal.Decimal `json:"margin_percent"`
	SetupFee      decimal.Decimal `json:"setup_fee"`
	TaxPercent    decimal.Decimal `json:"tax_percent"`
	Vendor        string          `json:"vendor"`
	IsActive      bool            `json:"is_active"`
}

// DirectoryUser is a user as returned by the directory service.
type DirectoryUser struct {
	ID       string `json:"id"`
	EntityID string `json:"entity_id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	IsActive bool   `json:"is_active"`
}

// BatchUsersRequest represents the batch user lookup request
type BatchUsersRequest struct {
	EntityID string   `json:"entity_id"`
	IDs      []string `json:"ids"`
}

// BatchUsersResponse represents the batch user lookup response
type BatchUsersResponse struct {
	Users []DirectoryUser `json:"users"`
}

// ErrorResponse is the error body returned by upstream services.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
