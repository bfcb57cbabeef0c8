package repository

import (
	"context"
	"time"

	"possales/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SaleQuery narrows ListSales. Zero values mean "no filter".
type SaleQuery struct {
	UserID  uint
	From    *time.Time // inclusive
	To      *time.Time // exclusive
	Page    int
	PerPage int
}

// ProductSales is one row of the top-products ranking.
type ProductSales struct {
	ProductID uint
	Name      string
	TotalSold int64
}

// SaleRepository is the read/delete side of sales. Creation only happens
// through UnitOfWork.
type SaleRepository interface {
	FindByID(ctx context.Context, id uint) (*model.Sale, error)
	List(ctx context.Context, q SaleQuery) ([]model.Sale, int64, error)
	Delete(ctx context.Context, id uint) error

	// SumTotal sums total_amount for sales with from <= timestamp < to.
	// A nil from means no lower bound.
	SumTotal(ctx context.Context, from *time.Time, to time.Time) (decimal.Decimal, error)
	Count(ctx context.Context, from, to time.Time) (int64, error)
	// TopProducts ranks products by quantity sold in [from, to), descending,
	// ties broken by ascending product id.
	TopProducts(ctx context.Context, from, to time.Time, limit int) ([]ProductSales, error)
}

type saleRepo struct{ db *gorm.DB }

func NewSaleRepository(db *gorm.DB) SaleRepository { return &saleRepo{db: db} }

func (r *saleRepo) FindByID(ctx context.Context, id uint) (*model.Sale, error) {
	var s model.Sale
	err := r.db.WithContext(ctx).
		Preload("User").
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Items.Product").
		Where("id = ?", id).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *saleRepo) List(ctx context.Context, q SaleQuery) ([]model.Sale, int64, error) {
	var sales []model.Sale
	var total int64

	tx := r.db.WithContext(ctx).Model(&model.Sale{})
	if q.UserID != 0 {
		tx = tx.Where("user_id = ?", q.UserID)
	}
	if q.From != nil {
		tx = tx.Where("timestamp >= ?", *q.From)
	}
	if q.To != nil {
		tx = tx.Where("timestamp < ?", *q.To)
	}

	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (q.Page - 1) * q.PerPage
	err := tx.
		Preload("User").
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Items.Product").
		Order("timestamp DESC, id DESC").
		Limit(q.PerPage).Offset(offset).
		Find(&sales).Error
	return sales, total, err
}

// Delete removes the sale and its items. Stock is not restored.
func (r *saleRepo) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("sale_id = ?", id).Delete(&model.SaleItem{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&model.Sale{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (r *saleRepo) SumTotal(ctx context.Context, from *time.Time, to time.Time) (decimal.Decimal, error) {
	tx := r.db.WithContext(ctx).Model(&model.Sale{}).
		Select("COALESCE(SUM(total_amount), 0)").
		Where("timestamp < ?", to)
	if from != nil {
		tx = tx.Where("timestamp >= ?", *from)
	}
	var sum decimal.Decimal
	if err := tx.Row().Scan(&sum); err != nil {
		return decimal.Zero, err
	}
	return sum, nil
}

func (r *saleRepo) Count(ctx context.Context, from, to time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Sale{}).
		Where("timestamp >= ? AND timestamp < ?", from, to).
		Count(&n).Error
	return n, err
}

func (r *saleRepo) TopProducts(ctx context.Context, from, to time.Time, limit int) ([]ProductSales, error) {
	var rows []ProductSales
	err := r.db.WithContext(ctx).
		Table("sale_items").
		Select("sale_items.product_id AS product_id, products.name AS name, SUM(sale_items.quantity) AS total_sold").
		Joins("JOIN sales ON sales.id = sale_items.sale_id").
		Joins("JOIN products ON products.id = sale_items.product_id").
		Where("sales.timestamp >= ? AND sales.timestamp < ?", from, to).
		Group("sale_items.product_id, products.name").
		Order("total_sold DESC, sale_items.product_id ASC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}
