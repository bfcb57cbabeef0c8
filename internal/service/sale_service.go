package service

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"possales/internal/access"
	"possales/internal/apierror"
	"possales/internal/dto"
	"possales/internal/infra"
	"possales/internal/model"
	"possales/internal/repository"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

type SaleService interface {
	CreateSale(ctx context.Context, p access.Principal, req dto.CreateSaleRequest) (*dto.SaleResponse, error)
	GetSale(ctx context.Context, p access.Principal, id uint) (*dto.SaleResponse, error)
	ListSales(ctx context.Context, p access.Principal, filter dto.SaleFilter) (*dto.SaleListResponse, error)
	DeleteSale(ctx context.Context, p access.Principal, id uint) error
	ReceiptPDF(ctx context.Context, p access.Principal, id uint) ([]byte, error)
	GetSalesSummary(ctx context.Context, p access.Principal, q dto.SummaryQuery) (*dto.SalesSummaryResponse, error)
	EmailSalesSummary(ctx context.Context, p access.Principal, req dto.EmailSummaryRequest) error
}

// ReportEnqueuer queues a summary e-mail for asynchronous delivery.
type ReportEnqueuer interface {
	EnqueueReportEmail(ctx context.Context, job dto.ReportEmailJob) error
}

type SaleServiceConfig struct {
	// MaxRetries is how many times a unit of work that failed with a
	// transient conflict is run again before the conflict is returned.
	MaxRetries int
	Location   *time.Location
	Now        func() time.Time
}

type saleService struct {
	uow      repository.UnitOfWork
	sales    repository.SaleRepository
	summary  *SummaryBuilder
	cache    ProductCache
	enqueuer ReportEnqueuer
	cfg      SaleServiceConfig
}

// NewSaleService builds the sale engine. cache and enqueuer may be nil.
func NewSaleService(
	uow repository.UnitOfWork,
	sales repository.SaleRepository,
	cache ProductCache,
	enqueuer ReportEnqueuer,
	cfg SaleServiceConfig,
) SaleService {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &saleService{
		uow:      uow,
		sales:    sales,
		summary:  NewSummaryBuilder(sales, cfg.Location),
		cache:    cache,
		enqueuer: enqueuer,
		cfg:      cfg,
	}
}

// ── CreateSale ────────────────────────────────────────────────────────────────
//   1. lock every referenced product row, ascending id
//   2. validate lines in input order against stock remaining in this sale
//   3. total from prices read under lock
//   4. insert sale + items, decrement stock
//   5. commit; transient conflicts rerun the whole unit of work

func (s *saleService) CreateSale(ctx context.Context, p access.Principal, req dto.CreateSaleRequest) (*dto.SaleResponse, error) {
	if err := access.Require(p, access.CapCreateSale); err != nil {
		return nil, err
	}
	if len(req.Items) == 0 {
		return nil, apierror.InvalidArgument("a sale needs at least one item")
	}

	var (
		sale  *model.Sale
		names map[uint]string
		err   error
	)
	for attempt := 0; ; attempt++ {
		sale, names, err = s.createSaleOnce(ctx, p.UserID, req.Items)
		if err == nil || !apierror.IsRetryable(err) || attempt >= s.cfg.MaxRetries {
			break
		}
		log.Warn().Err(err).Int("attempt", attempt+1).Uint("user_id", p.UserID).Msg("sale: transient conflict, retrying")
		if werr := sleepCtx(ctx, retryDelay(attempt)); werr != nil {
			return nil, apierror.Timeout(werr)
		}
	}
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		ids := make([]uint, 0, len(names))
		for id := range names {
			ids = append(ids, id)
		}
		s.cache.Invalidate(ctx, ids...)
	}

	for i := range sale.Items {
		sale.Items[i].Product = &model.Product{ID: sale.Items[i].ProductID, Name: names[sale.Items[i].ProductID]}
	}
	sale.User = &model.User{ID: p.UserID, Username: p.Username}

	log.Info().
		Uint("sale_id", sale.ID).
		Uint("user_id", p.UserID).
		Str("total", sale.TotalAmount.StringFixed(2)).
		Int("items", len(sale.Items)).
		Msg("sale created")
	return saleToResponse(sale), nil
}

func (s *saleService) createSaleOnce(ctx context.Context, userID uint, lines []dto.SaleLineRequest) (*model.Sale, map[uint]string, error) {
	var sale *model.Sale
	names := make(map[uint]string)

	err := s.uow.Do(ctx, func(tx repository.SaleTx) error {
		products, err := lockProducts(ctx, tx, lines)
		if err != nil {
			return err
		}

		remaining := make(map[uint]int, len(products))
		for id, prod := range products {
			remaining[id] = prod.Stock
		}

		items := make([]model.SaleItem, 0, len(lines))
		total := decimal.Zero
		for i, line := range lines {
			prod, ok := products[line.ProductID]
			if !ok {
				return apierror.NotFound("product %d not found", line.ProductID)
			}
			if line.Quantity <= 0 {
				return apierror.InvalidArgument("item %d: quantity must be a positive integer", i+1)
			}
			if remaining[prod.ID] < line.Quantity {
				return apierror.InsufficientStock(prod.Name, remaining[prod.ID])
			}
			remaining[prod.ID] -= line.Quantity

			item := model.SaleItem{ProductID: prod.ID, Quantity: line.Quantity, PriceAtSale: prod.Price}
			total = total.Add(item.Subtotal())
			items = append(items, item)
			names[prod.ID] = prod.Name
		}

		sale = &model.Sale{
			UserID:      userID,
			TotalAmount: total.Round(2),
			Timestamp:   s.cfg.Now().UTC(),
			Items:       items,
		}
		if err := tx.InsertSale(ctx, sale); err != nil {
			return err
		}
		for _, item := range sale.Items {
			if err := tx.DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return sale, names, nil
}

// lockProducts locks each distinct referenced product in ascending id order
// so that two sales touching the same products cannot deadlock. Missing
// products are left out of the map.
func lockProducts(ctx context.Context, tx repository.SaleTx, lines []dto.SaleLineRequest) (map[uint]*model.Product, error) {
	seen := make(map[uint]bool, len(lines))
	ids := make([]uint, 0, len(lines))
	for _, l := range lines {
		if !seen[l.ProductID] {
			seen[l.ProductID] = true
			ids = append(ids, l.ProductID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	products := make(map[uint]*model.Product, len(ids))
	for _, id := range ids {
		prod, err := tx.GetProductForUpdate(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		products[id] = prod
	}
	return products, nil
}

func retryDelay(attempt int) time.Duration {
	return time.Duration(10*math.Pow(2, float64(attempt))) * time.Millisecond
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ── Reads ─────────────────────────────────────────────────────────────────────

func (s *saleService) GetSale(ctx context.Context, p access.Principal, id uint) (*dto.SaleResponse, error) {
	sale, err := s.visibleSale(ctx, p, id)
	if err != nil {
		return nil, err
	}
	return saleToResponse(sale), nil
}

func (s *saleService) visibleSale(ctx context.Context, p access.Principal, id uint) (*model.Sale, error) {
	if err := access.Require(p, access.CapReadSales); err != nil {
		return nil, err
	}
	sale, err := s.sales.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apierror.NotFound("sale %d not found", id)
	}
	if err != nil {
		return nil, repository.ClassifyError(err)
	}
	if sale.UserID != p.UserID && !p.Can(access.CapReadAllSales) {
		return nil, apierror.PermissionDenied("sale %d belongs to another user", id)
	}
	return sale, nil
}

func (s *saleService) ListSales(ctx context.Context, p access.Principal, filter dto.SaleFilter) (*dto.SaleListResponse, error) {
	if err := access.Require(p, access.CapReadSales); err != nil {
		return nil, err
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PerPage < 1 {
		filter.PerPage = 20
	}
	if filter.PerPage > 100 {
		filter.PerPage = 100
	}

	q := repository.SaleQuery{Page: filter.Page, PerPage: filter.PerPage}
	if !p.Can(access.CapReadAllSales) {
		q.UserID = p.UserID
	}
	if filter.StartDate != "" {
		from, _, err := parseDateOrTime(filter.StartDate, s.cfg.Location)
		if err != nil {
			return nil, apierror.InvalidArgument("start_date: %v", err)
		}
		q.From = &from
	}
	if filter.EndDate != "" {
		end, dateOnly, err := parseDateOrTime(filter.EndDate, s.cfg.Location)
		if err != nil {
			return nil, apierror.InvalidArgument("end_date: %v", err)
		}
		// end_date is inclusive: a whole day, or up to the given instant.
		if dateOnly {
			end = end.AddDate(0, 0, 1)
		} else {
			end = end.Add(time.Microsecond)
		}
		q.To = &end
	}

	sales, total, err := s.sales.List(ctx, q)
	if err != nil {
		return nil, repository.ClassifyError(err)
	}

	data := make([]dto.SaleResponse, 0, len(sales))
	for i := range sales {
		data = append(data, *saleToResponse(&sales[i]))
	}
	return &dto.SaleListResponse{
		Data:       data,
		Total:      total,
		Page:       filter.Page,
		PerPage:    filter.PerPage,
		TotalPages: int(math.Ceil(float64(total) / float64(filter.PerPage))),
	}, nil
}

func (s *saleService) DeleteSale(ctx context.Context, p access.Principal, id uint) error {
	if err := access.Require(p, access.CapDeleteSale); err != nil {
		return err
	}
	err := s.sales.Delete(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return apierror.NotFound("sale %d not found", id)
	}
	if err != nil {
		return repository.ClassifyError(err)
	}
	log.Info().Uint("sale_id", id).Uint("deleted_by", p.UserID).Msg("sale deleted")
	return nil
}

func (s *saleService) ReceiptPDF(ctx context.Context, p access.Principal, id uint) ([]byte, error) {
	sale, err := s.visibleSale(ctx, p, id)
	if err != nil {
		return nil, err
	}
	return infra.RenderReceiptPDF(sale, s.cfg.Location)
}

// ── Reports ───────────────────────────────────────────────────────────────────

func (s *saleService) GetSalesSummary(ctx context.Context, p access.Principal, q dto.SummaryQuery) (*dto.SalesSummaryResponse, error) {
	if err := access.Require(p, access.CapReadReports); err != nil {
		return nil, err
	}
	asOf, topN, err := s.summaryParams(q.AsOf, q.TopN)
	if err != nil {
		return nil, err
	}
	return s.summary.Build(ctx, asOf, topN)
}

func (s *saleService) EmailSalesSummary(ctx context.Context, p access.Principal, req dto.EmailSummaryRequest) error {
	if err := access.Require(p, access.CapReadReports); err != nil {
		return err
	}
	if s.enqueuer == nil {
		return apierror.StorageFailure(errors.New("report queue not configured"))
	}
	asOf, topN, err := s.summaryParams(req.AsOf, req.TopN)
	if err != nil {
		return err
	}
	job := dto.ReportEmailJob{
		To:          req.To,
		AsOf:        asOf.Format(time.RFC3339),
		TopN:        topN,
		RequestedBy: p.UserID,
	}
	if err := s.enqueuer.EnqueueReportEmail(ctx, job); err != nil {
		return apierror.StorageFailure(err)
	}
	log.Info().Str("to", req.To).Uint("requested_by", p.UserID).Msg("summary e-mail queued")
	return nil
}

func (s *saleService) summaryParams(asOfRaw string, topN int) (time.Time, int, error) {
	asOf := s.cfg.Now().In(s.cfg.Location)
	if asOfRaw != "" {
		t, _, err := parseDateOrTime(asOfRaw, s.cfg.Location)
		if err != nil {
			return time.Time{}, 0, apierror.InvalidArgument("as_of: %v", err)
		}
		asOf = t
	}
	if topN == 0 {
		topN = DefaultTopN
	}
	if topN < 1 || topN > MaxTopN {
		return time.Time{}, 0, apierror.InvalidArgument("top_n must be between 1 and %d", MaxTopN)
	}
	return asOf, topN, nil
}
