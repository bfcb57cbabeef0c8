package service

import (
	"context"
	"errors"
	"math"
	"strings"

	"possales/internal/apierror"
	"possales/internal/dto"
	"possales/internal/model"
	"possales/internal/repository"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ProductCache is a read-through cache of product responses keyed by id.
type ProductCache interface {
	Get(ctx context.Context, id uint) (*dto.ProductResponse, bool)
	Set(ctx context.Context, p *dto.ProductResponse)
	Invalidate(ctx context.Context, ids ...uint)
}

type ProductService interface {
	List(ctx context.Context, filter dto.ProductFilter) (*dto.ProductListResponse, error)
	Get(ctx context.Context, id uint) (*dto.ProductResponse, error)
	Create(ctx context.Context, req dto.CreateProductRequest) (*dto.ProductResponse, error)
	Update(ctx context.Context, id uint, req dto.UpdateProductRequest) (*dto.ProductResponse, error)
	SetStock(ctx context.Context, id uint, stock int) (*dto.ProductResponse, error)
	Delete(ctx context.Context, id uint) error
}

type productService struct {
	repo       repository.ProductRepository
	categories repository.CategoryRepository
	cache      ProductCache
}

// NewProductService wires the catalog. cache may be nil.
func NewProductService(repo repository.ProductRepository, categories repository.CategoryRepository, cache ProductCache) ProductService {
	return &productService{repo: repo, categories: categories, cache: cache}
}

func (s *productService) List(ctx context.Context, filter dto.ProductFilter) (*dto.ProductListResponse, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PerPage < 1 || filter.PerPage > 100 {
		filter.PerPage = 50
	}
	products, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, repository.ClassifyError(err)
	}
	data := make([]dto.ProductResponse, 0, len(products))
	for i := range products {
		data = append(data, *productToResponse(&products[i]))
	}
	return &dto.ProductListResponse{
		Data:       data,
		Total:      total,
		Page:       filter.Page,
		PerPage:    filter.PerPage,
		TotalPages: int(math.Ceil(float64(total) / float64(filter.PerPage))),
	}, nil
}

func (s *productService) Get(ctx context.Context, id uint) (*dto.ProductResponse, error) {
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, id); ok {
			return cached, nil
		}
	}
	p, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := productToResponse(p)
	if s.cache != nil {
		s.cache.Set(ctx, resp)
	}
	return resp, nil
}

func (s *productService) Create(ctx context.Context, req dto.CreateProductRequest) (*dto.ProductResponse, error) {
	if err := checkPrice(req.Price); err != nil {
		return nil, err
	}
	if req.Stock < 0 {
		return nil, apierror.InvalidArgument("stock must not be negative")
	}
	cat, err := s.category(ctx, req.CategoryID)
	if err != nil {
		return nil, err
	}

	p := &model.Product{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Price:       req.Price,
		Stock:       req.Stock,
		CategoryID:  cat.ID,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, repository.ClassifyError(err)
	}
	p.Category = cat
	log.Info().Uint("product_id", p.ID).Str("name", p.Name).Msg("product created")
	return productToResponse(p), nil
}

func (s *productService) Update(ctx context.Context, id uint, req dto.UpdateProductRequest) (*dto.ProductResponse, error) {
	p, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		p.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.Price != nil {
		if err := checkPrice(*req.Price); err != nil {
			return nil, err
		}
		p.Price = *req.Price
	}
	if req.CategoryID != nil && *req.CategoryID != p.CategoryID {
		cat, err := s.category(ctx, *req.CategoryID)
		if err != nil {
			return nil, err
		}
		p.CategoryID = cat.ID
		p.Category = cat
	}
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, repository.ClassifyError(err)
	}
	s.invalidate(ctx, id)
	return productToResponse(p), nil
}

// SetStock overwrites the stock count, for restocking and inventory counts.
func (s *productService) SetStock(ctx context.Context, id uint, stock int) (*dto.ProductResponse, error) {
	if stock < 0 {
		return nil, apierror.InvalidArgument("stock must not be negative")
	}
	err := s.repo.SetStock(ctx, id, stock)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apierror.NotFound("product %d not found", id)
	}
	if err != nil {
		return nil, repository.ClassifyError(err)
	}
	s.invalidate(ctx, id)
	log.Info().Uint("product_id", id).Int("stock", stock).Msg("product stock set")
	p, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return productToResponse(p), nil
}

func (s *productService) Delete(ctx context.Context, id uint) error {
	if _, err := s.find(ctx, id); err != nil {
		return err
	}
	referenced, err := s.repo.IsReferencedBySales(ctx, id)
	if err != nil {
		return repository.ClassifyError(err)
	}
	if referenced {
		return apierror.Conflict("product has sales and cannot be deleted", nil)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apierror.NotFound("product %d not found", id)
		}
		return repository.ClassifyError(err)
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *productService) find(ctx context.Context, id uint) (*model.Product, error) {
	p, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apierror.NotFound("product %d not found", id)
	}
	if err != nil {
		return nil, repository.ClassifyError(err)
	}
	return p, nil
}

func (s *productService) category(ctx context.Context, id uint) (*model.Category, error) {
	c, err := s.categories.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apierror.NotFound("category %d not found", id)
	}
	if err != nil {
		return nil, repository.ClassifyError(err)
	}
	return c, nil
}

func (s *productService) invalidate(ctx context.Context, ids ...uint) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, ids...)
	}
}

// checkPrice enforces decimal(10,2): non-negative, at most 2 fraction digits,
// at most 8 integer digits.
func checkPrice(p decimal.Decimal) error {
	if p.IsNegative() {
		return apierror.InvalidArgument("price must not be negative")
	}
	if !p.Equal(p.Round(2)) {
		return apierror.InvalidArgument("price must have at most 2 decimal places")
	}
	if p.GreaterThanOrEqual(decimal.New(1, 8)) {
		return apierror.InvalidArgument("price is too large")
	}
	return nil
}
