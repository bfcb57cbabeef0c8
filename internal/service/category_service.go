package service

import (
	"context"
	"errors"
	"strings"

	"possales/internal/apierror"
	"possales/internal/dto"
	"possales/internal/model"
	"possales/internal/repository"
)

// CategoryService defines business operations for product categories.
type CategoryService interface {
	Create(ctx context.Context, req dto.CategoryRequest) (dto.CategoryResponse, error)
	List(ctx context.Context) ([]dto.CategoryResponse, error)
	Update(ctx context.Context, id uint, req dto.CategoryRequest) (dto.CategoryResponse, error)
	Delete(ctx context.Context, id uint) error
}

type categoryService struct {
	repo     repository.CategoryRepository
	products repository.ProductRepository
}

func NewCategoryService(repo repository.CategoryRepository, products repository.ProductRepository) CategoryService {
	return &categoryService{repo: repo, products: products}
}

func (s *categoryService) Create(ctx context.Context, req dto.CategoryRequest) (dto.CategoryResponse, error) {
	name := strings.TrimSpace(req.Name)
	if err := s.ensureNameFree(ctx, name, 0); err != nil {
		return dto.CategoryResponse{}, err
	}
	c := &model.Category{Name: name}
	if err := s.repo.Create(ctx, c); err != nil {
		return dto.CategoryResponse{}, repository.ClassifyError(err)
	}
	return categoryToResponse(c), nil
}

func (s *categoryService) List(ctx context.Context) ([]dto.CategoryResponse, error) {
	cats, err := s.repo.List(ctx)
	if err != nil {
		return nil, repository.ClassifyError(err)
	}
	out := make([]dto.CategoryResponse, 0, len(cats))
	for i := range cats {
		out = append(out, categoryToResponse(&cats[i]))
	}
	return out, nil
}

func (s *categoryService) Update(ctx context.Context, id uint, req dto.CategoryRequest) (dto.CategoryResponse, error) {
	c, err := s.find(ctx, id)
	if err != nil {
		return dto.CategoryResponse{}, err
	}
	name := strings.TrimSpace(req.Name)
	if err := s.ensureNameFree(ctx, name, id); err != nil {
		return dto.CategoryResponse{}, err
	}
	c.Name = name
	if err := s.repo.Update(ctx, c); err != nil {
		return dto.CategoryResponse{}, repository.ClassifyError(err)
	}
	return categoryToResponse(c), nil
}

func (s *categoryService) Delete(ctx context.Context, id uint) error {
	if _, err := s.find(ctx, id); err != nil {
		return err
	}
	n, err := s.products.CountByCategory(ctx, id)
	if err != nil {
		return repository.ClassifyError(err)
	}
	if n > 0 {
		return apierror.Conflict("category still has products", nil)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apierror.NotFound("category %d not found", id)
		}
		return repository.ClassifyError(err)
	}
	return nil
}

func (s *categoryService) find(ctx context.Context, id uint) (*model.Category, error) {
	c, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apierror.NotFound("category %d not found", id)
	}
	if err != nil {
		return nil, repository.ClassifyError(err)
	}
	return c, nil
}

// ensureNameFree rejects a name already used by a category other than self.
func (s *categoryService) ensureNameFree(ctx context.Context, name string, self uint) error {
	existing, err := s.repo.FindByName(ctx, name)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return repository.ClassifyError(err)
	}
	if existing != nil && existing.ID != self {
		return apierror.Conflict("a category with this name already exists", nil)
	}
	return nil
}
