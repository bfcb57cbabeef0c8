package dto

// ─── Request DTOs ────────────────────────────────────────────────────────────

// SaleLineRequest is one requested (product, quantity) pair. Quantity is
// checked by the sale engine so that a non-positive value is reported as an
// invalid argument for the offending line.
type SaleLineRequest struct {
	ProductID uint `json:"product_id" validate:"required"`
	Quantity  int  `json:"quantity"`
}

type CreateSaleRequest struct {
	Items []SaleLineRequest `json:"items" validate:"required,min=1,dive"`
}

// ─── Filter / Pagination ─────────────────────────────────────────────────────

type SaleFilter struct {
	StartDate string `form:"start_date"`
	EndDate   string `form:"end_date"`
	Page      int    `form:"page,default=1"      validate:"min=1"`
	PerPage   int    `form:"per_page,default=20" validate:"min=1,max=100"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type SaleItemResponse struct {
	ID          uint   `json:"id"`
	ProductID   uint   `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	PriceAtSale string `json:"price_at_sale"`
	Subtotal    string `json:"subtotal"`
}

type SaleResponse struct {
	ID           uint               `json:"id"`
	UserID       uint               `json:"user_id"`
	UserUsername string             `json:"user_username,omitempty"`
	TotalAmount  string             `json:"total_amount"`
	Timestamp    string             `json:"timestamp"`
	Items        []SaleItemResponse `json:"items"`
}

type SaleListResponse struct {
	Data       []SaleResponse `json:"data"`
	Total      int64          `json:"total"`
	Page       int            `json:"page"`
	PerPage    int            `json:"per_page"`
	TotalPages int            `json:"total_pages"`
}
