package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"sanjoseboots/backend/internal/domain"
	"sanjoseboots/backend/internal/store"
)

func (s *Service) ListProducts(ctx context.Context, query store.ProductQuery) ([]domain.Product, error) {
	if _, err := s.authorize(ctx, domain.ResourceProducts, domain.ActionRead); err != nil {
		return nil, err
	}
	query.Search = strings.TrimSpace(query.Search)
	if len(query.Search) > 100 {
		return nil, validationError("search must be at most 100 characters")
	}
	return s.repo.ListProducts(ctx, query)
}

func (s *Service) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	if _, err := s.authorize(ctx, domain.ResourceProducts, domain.ActionRead); err != nil {
		return nil, err
	}
	if id <= 0 {
		return nil, store.ErrNotFound
	}
	return s.repo.GetProduct(ctx, id)
}

// GetVariant returns the authoritative price and stock of one sellable
// variant.
func (s *Service) GetVariant(ctx context.Context, id int64) (domain.Variant, error) {
	if _, err := s.authorize(ctx, domain.ResourceProducts, domain.ActionRead); err != nil {
		return domain.Variant{}, err
	}
	variants, err := s.repo.GetVariants(ctx, []int64{id})
	if err != nil {
		return domain.Variant{}, err
	}
	variant, ok := variants[id]
	if !ok {
		return domain.Variant{}, fmt.Errorf("variant %d: %w", id, store.ErrNotFound)
	}
	return variant, nil
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	if _, err := s.authorize(ctx, domain.ResourceProducts, domain.ActionRead); err != nil {
		return nil, err
	}
	return s.repo.ListCategories(ctx)
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	if _, err := s.authorize(ctx, domain.ResourceProducts, domain.ActionRead); err != nil {
		return nil, err
	}
	return s.repo.ListSuppliers(ctx)
}

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierRequest) (*domain.Supplier, error) {
	if _, err := s.authorize(ctx, domain.ResourceProducts, domain.ActionCreate); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, validationError("supplier name is required")
	}

	created, err := s.repo.CreateSupplier(ctx, domain.Supplier{
		Name:    name,
		Contact: strings.TrimSpace(req.Contact),
		Phone:   strings.TrimSpace(req.Phone),
		Email:   strings.ToLower(strings.TrimSpace(req.Email)),
	})
	if err != nil {
		return nil, err
	}
	s.audit(ctx, "supplier_create", "supplier", strconv.FormatInt(created.ID, 10), zap.String("name", created.Name))
	return created, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductRequest) (*domain.Product, error) {
	if _, err := s.authorize(ctx, domain.ResourceProducts, domain.ActionCreate); err != nil {
		return nil, err
	}
	product, err := normalizeProduct(req)
	if err != nil {
		return nil, err
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return nil, err
	}
	s.invalidateReports(ctx)
	s.audit(ctx, "product_create", "product", strconv.FormatInt(created.ID, 10),
		zap.String("code", created.Code),
		zap.Int("variants", len(created.Variants)),
	)
	return created, nil
}

// UpdateProduct rewrites a product and its variants. Stock of existing
// variants is ignored here; it only moves through sales, cancellations and
// restocks.
func (s *Service) UpdateProduct(ctx context.Context, id int64, req domain.ProductRequest) (*domain.Product, error) {
	if _, err := s.authorize(ctx, domain.ResourceProducts, domain.ActionUpdate); err != nil {
		return nil, err
	}
	product, err := normalizeProduct(req)
	if err != nil {
		return nil, err
	}
	product.ID = id

	updated, err := s.repo.UpdateProduct(ctx, product)
	if err != nil {
		return nil, err
	}
	s.invalidateReports(ctx)
	s.audit(ctx, "product_update", "product", strconv.FormatInt(updated.ID, 10),
		zap.String("code", updated.Code),
		zap.Int("variants", len(updated.Variants)),
	)
	return updated, nil
}

// DeleteProduct is a soft delete: the product and its variants become
// inactive so historical sale lines keep resolving.
func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	if _, err := s.authorize(ctx, domain.ResourceProducts, domain.ActionDelete); err != nil {
		return err
	}
	if err := s.repo.DeactivateProduct(ctx, id); err != nil {
		return err
	}
	s.invalidateReports(ctx)
	s.audit(ctx, "product_deactivate", "product", strconv.FormatInt(id, 10))
	return nil
}

// Restock adds received units to a variant through the stock ledger.
func (s *Service) Restock(ctx context.Context, variantID int64, req domain.RestockRequest) error {
	if _, err := s.authorize(ctx, domain.ResourceInventory, domain.ActionUpdate); err != nil {
		return err
	}
	if req.Quantity <= 0 || req.Quantity > store.MaxStockIncrement {
		return validationError("quantity must be between 1 and %d", store.MaxStockIncrement)
	}
	if err := s.repo.Increment(ctx, variantID, req.Quantity); err != nil {
		return err
	}
	s.invalidateReports(ctx)
	s.audit(ctx, "variant_restock", "variant", strconv.FormatInt(variantID, 10),
		zap.Int("quantity", req.Quantity),
		zap.String("note", strings.TrimSpace(req.Note)),
	)
	return nil
}

func normalizeProduct(req domain.ProductRequest) (domain.Product, error) {
	product := domain.Product{
		Code:        strings.ToUpper(strings.TrimSpace(req.Code)),
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		CategoryID:  req.CategoryID,
		SupplierID:  req.SupplierID,
		Active:      true,
	}
	if product.Code == "" || product.Name == "" {
		return domain.Product{}, validationError("code and name are required")
	}
	if product.CategoryID <= 0 {
		return domain.Product{}, validationError("categoryId is required")
	}
	if len(req.Variants) == 0 {
		return domain.Product{}, validationError("at least one variant is required")
	}

	seen := make(map[string]bool, len(req.Variants))
	for i, in := range req.Variants {
		sku := strings.ToUpper(strings.TrimSpace(in.SKU))
		if sku == "" {
			return domain.Product{}, validationError("variant %d: sku is required", i+1)
		}
		if seen[sku] {
			return domain.Product{}, validationError("variant %d: sku %s is repeated", i+1, sku)
		}
		seen[sku] = true
		if in.Price <= 0 {
			return domain.Product{}, validationError("variant %d: price must be positive", i+1)
		}
		if in.Stock < 0 || in.MinStock < 0 {
			return domain.Product{}, validationError("variant %d: stock and minStock must not be negative", i+1)
		}
		product.Variants = append(product.Variants, domain.Variant{
			ID:       in.ID,
			SKU:      sku,
			Size:     strings.TrimSpace(in.Size),
			Color:    strings.TrimSpace(in.Color),
			Style:    strings.TrimSpace(in.Style),
			Price:    in.Price,
			Stock:    in.Stock,
			MinStock: in.MinStock,
			Active:   true,
		})
	}
	return product, nil
}
