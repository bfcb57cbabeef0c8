package repository

import (
	"context"
	"database/sql"

	"possales/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SaleTx is the view of the catalog and sales tables available inside one
// unit of work. Every call shares the same transaction.
type SaleTx interface {
	// GetProductForUpdate reads a product and holds its row lock until the
	// unit of work ends. Returns ErrNotFound if the product does not exist.
	GetProductForUpdate(ctx context.Context, id uint) (*model.Product, error)
	// DecrementStock subtracts qty from a product locked in this unit of work.
	DecrementStock(ctx context.Context, id uint, qty int) error
	// InsertSale inserts the sale row and then its items, filling in ids.
	InsertSale(ctx context.Context, sale *model.Sale) error
}

// UnitOfWork runs fn inside a transaction. fn returning an error, or ctx
// expiring, rolls back everything fn did.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(tx SaleTx) error) error
}

type gormUnitOfWork struct{ db *gorm.DB }

// NewUnitOfWork returns a UnitOfWork backed by db (Postgres or MySQL).
func NewUnitOfWork(db *gorm.DB) UnitOfWork { return &gormUnitOfWork{db: db} }

func (u *gormUnitOfWork) Do(ctx context.Context, fn func(tx SaleTx) error) error {
	err := u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormSaleTx{tx: tx})
	}, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	return ClassifyError(err)
}

type gormSaleTx struct{ tx *gorm.DB }

func (t *gormSaleTx) GetProductForUpdate(ctx context.Context, id uint) (*model.Product, error) {
	var p model.Product
	err := t.tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (t *gormSaleTx) DecrementStock(ctx context.Context, id uint, qty int) error {
	res := t.tx.WithContext(ctx).
		Model(&model.Product{}).
		Where("id = ? AND stock >= ?", id, qty).
		Update("stock", gorm.Expr("stock - ?", qty))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errStockGuard
	}
	return nil
}

func (t *gormSaleTx) InsertSale(ctx context.Context, sale *model.Sale) error {
	items := sale.Items
	if err := t.tx.WithContext(ctx).Omit(clause.Associations).Create(sale).Error; err != nil {
		return err
	}
	for i := range items {
		items[i].SaleID = sale.ID
	}
	if len(items) == 0 {
		return nil
	}
	return t.tx.WithContext(ctx).Omit(clause.Associations).Create(&items).Error
}
