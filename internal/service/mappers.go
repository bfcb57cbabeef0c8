package service

import (
	"errors"
	"time"

	"possales/internal/dto"
	"possales/internal/model"
)

func saleToResponse(s *model.Sale) *dto.SaleResponse {
	items := make([]dto.SaleItemResponse, 0, len(s.Items))
	for _, it := range s.Items {
		name := ""
		if it.Product != nil {
			name = it.Product.Name
		}
		items = append(items, dto.SaleItemResponse{
			ID:          it.ID,
			ProductID:   it.ProductID,
			ProductName: name,
			Quantity:    it.Quantity,
			PriceAtSale: it.PriceAtSale.StringFixed(2),
			Subtotal:    it.Subtotal().StringFixed(2),
		})
	}
	resp := &dto.SaleResponse{
		ID:          s.ID,
		UserID:      s.UserID,
		TotalAmount: s.TotalAmount.StringFixed(2),
		Timestamp:   s.Timestamp.UTC().Format(time.RFC3339),
		Items:       items,
	}
	if s.User != nil {
		resp.UserUsername = s.User.Username
	}
	return resp
}

func productToResponse(p *model.Product) *dto.ProductResponse {
	resp := &dto.ProductResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price.StringFixed(2),
		Stock:       p.Stock,
		CategoryID:  p.CategoryID,
		CreatedAt:   p.CreatedAt.UTC().Format(time.RFC3339),
	}
	if p.Category != nil {
		resp.CategoryName = p.Category.Name
	}
	return resp
}

func categoryToResponse(c *model.Category) dto.CategoryResponse {
	return dto.CategoryResponse{ID: c.ID, Name: c.Name, CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339)}
}

func userToResponse(u *model.User) dto.UserResponse {
	return dto.UserResponse{ID: u.ID, Username: u.Username, Role: u.Role, CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339)}
}

var errBadTime = errors.New("expected YYYY-MM-DD or RFC 3339 timestamp")

// parseDateOrTime accepts a calendar date (midnight in loc) or an RFC 3339
// timestamp. dateOnly reports which form was given.
func parseDateOrTime(s string, loc *time.Location) (t time.Time, dateOnly bool, err error) {
	if d, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return d, true, nil
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, false, nil
	}
	if ts, err := time.ParseInLocation("2006-01-02T15:04:05", s, loc); err == nil {
		return ts, false, nil
	}
	return time.Time{}, false, errBadTime
}
