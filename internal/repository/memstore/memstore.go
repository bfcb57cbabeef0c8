// Package memstore is an in-memory implementation of the sale unit of work
// and the sale read side. Each product row has its own lock, held from
// GetProductForUpdate until the unit of work ends, and writes are buffered
// and applied at commit.
package memstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"possales/internal/apierror"
	"possales/internal/model"
	"possales/internal/repository"

	"github.com/shopspring/decimal"
)

// Store holds products and sales. The zero value is not usable; call New.
type Store struct {
	mu       sync.Mutex
	products map[uint]*model.Product
	users    map[uint]*model.User
	rowLocks map[uint]chan struct{}
	sales    map[uint]*model.Sale
	nextSale uint
	nextItem uint

	// BeforeCommit, when set, runs before buffered writes are applied. A
	// non-nil return rolls the unit of work back with that error.
	BeforeCommit func() error
}

var errNotLocked = errors.New("memstore: product row not locked in this unit of work")

var (
	_ repository.UnitOfWork     = (*Store)(nil)
	_ repository.SaleRepository = (*Store)(nil)
)

func New() *Store {
	return &Store{
		products: make(map[uint]*model.Product),
		users:    make(map[uint]*model.User),
		rowLocks: make(map[uint]chan struct{}),
		sales:    make(map[uint]*model.Sale),
	}
}

// PutProduct inserts or replaces a product.
func (s *Store) PutProduct(p model.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := p
	s.products[p.ID] = &cp
	if _, ok := s.rowLocks[p.ID]; !ok {
		s.rowLocks[p.ID] = make(chan struct{}, 1)
	}
}

// PutUser registers a user so sale lookups can resolve usernames.
func (s *Store) PutUser(u model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := u
	s.users[u.ID] = &cp
}

// Product returns a committed snapshot of a product.
func (s *Store) Product(id uint) (model.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return model.Product{}, false
	}
	return *p, true
}

// SaleCount returns the number of committed sales.
func (s *Store) SaleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sales)
}

// InsertCommittedSale stores a sale directly, bypassing the unit of work.
// Used to seed report fixtures with fixed timestamps.
func (s *Store) InsertCommittedSale(sale model.Sale) model.Sale {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSale++
	sale.ID = s.nextSale
	for i := range sale.Items {
		s.nextItem++
		sale.Items[i].ID = s.nextItem
		sale.Items[i].SaleID = sale.ID
	}
	cp := cloneSale(&sale)
	s.sales[sale.ID] = cp
	return *cloneSale(cp)
}

// ─── Unit of work ────────────────────────────────────────────────────────────

func (s *Store) Do(ctx context.Context, fn func(tx repository.SaleTx) error) error {
	tx := &memTx{store: s, locked: make(map[uint]bool), stock: make(map[uint]int)}
	defer tx.release()

	if err := fn(tx); err != nil {
		return repository.ClassifyError(err)
	}
	if err := ctx.Err(); err != nil {
		return apierror.Timeout(err)
	}
	if s.BeforeCommit != nil {
		if err := s.BeforeCommit(); err != nil {
			return repository.ClassifyError(err)
		}
	}
	tx.commit()
	return nil
}

type memTx struct {
	store  *Store
	locked map[uint]bool
	stock  map[uint]int // pending stock per locked product
	sales  []*model.Sale
}

func (t *memTx) GetProductForUpdate(ctx context.Context, id uint) (*model.Product, error) {
	t.store.mu.Lock()
	lock, ok := t.store.rowLocks[id]
	t.store.mu.Unlock()
	if !ok {
		return nil, repository.ErrNotFound
	}

	if !t.locked[id] {
		select {
		case lock <- struct{}{}:
			t.locked[id] = true
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	t.store.mu.Lock()
	p, ok := t.store.products[id]
	var cp model.Product
	if ok {
		cp = *p
	}
	t.store.mu.Unlock()
	if !ok {
		return nil, repository.ErrNotFound
	}
	if pending, seen := t.stock[id]; seen {
		cp.Stock = pending
	} else {
		t.stock[id] = cp.Stock
	}
	return &cp, nil
}

func (t *memTx) DecrementStock(_ context.Context, id uint, qty int) error {
	if !t.locked[id] {
		return apierror.StorageFailure(errNotLocked)
	}
	if t.stock[id] < qty {
		return apierror.Conflict("stock changed during sale", nil)
	}
	t.stock[id] -= qty
	return nil
}

func (t *memTx) InsertSale(_ context.Context, sale *model.Sale) error {
	t.store.mu.Lock()
	t.store.nextSale++
	sale.ID = t.store.nextSale
	for i := range sale.Items {
		t.store.nextItem++
		sale.Items[i].ID = t.store.nextItem
		sale.Items[i].SaleID = sale.ID
	}
	t.store.mu.Unlock()
	t.sales = append(t.sales, sale)
	return nil
}

func (t *memTx) commit() {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for id, stock := range t.stock {
		if p, ok := t.store.products[id]; ok {
			p.Stock = stock
		}
	}
	for _, sale := range t.sales {
		t.store.sales[sale.ID] = cloneSale(sale)
	}
}

func (t *memTx) release() {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for id := range t.locked {
		<-t.store.rowLocks[id]
	}
	t.locked = nil
}

// ─── Read side ───────────────────────────────────────────────────────────────

func (s *Store) FindByID(_ context.Context, id uint) (*model.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sale, ok := s.sales[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s.hydrate(sale), nil
}

func (s *Store) List(_ context.Context, q repository.SaleQuery) ([]model.Sale, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*model.Sale
	for _, sale := range s.sales {
		if q.UserID != 0 && sale.UserID != q.UserID {
			continue
		}
		if q.From != nil && sale.Timestamp.Before(*q.From) {
			continue
		}
		if q.To != nil && !sale.Timestamp.Before(*q.To) {
			continue
		}
		matched = append(matched, sale)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Timestamp.Equal(matched[j].Timestamp) {
			return matched[i].Timestamp.After(matched[j].Timestamp)
		}
		return matched[i].ID > matched[j].ID
	})

	total := int64(len(matched))
	start := (q.Page - 1) * q.PerPage
	if start > len(matched) {
		start = len(matched)
	}
	end := start + q.PerPage
	if end > len(matched) {
		end = len(matched)
	}
	out := make([]model.Sale, 0, end-start)
	for _, sale := range matched[start:end] {
		out = append(out, *s.hydrate(sale))
	}
	return out, total, nil
}

func (s *Store) Delete(_ context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sales[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.sales, id)
	return nil
}

func (s *Store) SumTotal(_ context.Context, from *time.Time, to time.Time) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := decimal.Zero
	for _, sale := range s.sales {
		if !sale.Timestamp.Before(to) || (from != nil && sale.Timestamp.Before(*from)) {
			continue
		}
		sum = sum.Add(sale.TotalAmount)
	}
	return sum, nil
}

func (s *Store) Count(_ context.Context, from, to time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, sale := range s.sales {
		if inWindow(sale.Timestamp, from, to) {
			n++
		}
	}
	return n, nil
}

func (s *Store) TopProducts(_ context.Context, from, to time.Time, limit int) ([]repository.ProductSales, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	totals := make(map[uint]int64)
	for _, sale := range s.sales {
		if !inWindow(sale.Timestamp, from, to) {
			continue
		}
		for _, item := range sale.Items {
			totals[item.ProductID] += int64(item.Quantity)
		}
	}

	rows := make([]repository.ProductSales, 0, len(totals))
	for id, qty := range totals {
		row := repository.ProductSales{ProductID: id, TotalSold: qty}
		if p, ok := s.products[id]; ok {
			row.Name = p.Name
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].TotalSold != rows[j].TotalSold {
			return rows[i].TotalSold > rows[j].TotalSold
		}
		return rows[i].ProductID < rows[j].ProductID
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// hydrate copies a stored sale and attaches user and product references.
// Callers hold s.mu.
func (s *Store) hydrate(sale *model.Sale) *model.Sale {
	out := cloneSale(sale)
	if u, ok := s.users[out.UserID]; ok {
		cp := *u
		out.User = &cp
	}
	for i := range out.Items {
		if p, ok := s.products[out.Items[i].ProductID]; ok {
			cp := *p
			out.Items[i].Product = &cp
		}
	}
	return out
}

func cloneSale(s *model.Sale) *model.Sale {
	cp := *s
	cp.User = nil
	cp.Items = make([]model.SaleItem, len(s.Items))
	for i, item := range s.Items {
		item.Product = nil
		cp.Items[i] = item
	}
	return &cp
}

func inWindow(ts, from, to time.Time) bool {
	return !ts.Before(from) && ts.Before(to)
}
