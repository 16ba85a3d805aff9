package usecase

import (
	"context"
	"log"
	"net/http"
	"strings"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"
)

// 画像削除だけの約束（infraのImageStoreが実装）
type ImageDeleter interface {
	Delete(imagePath string) error
}

type ProductUsecase struct {
	productRepo   repo.ProductRepository
	inventoryRepo repo.InventoryRepository
	images        ImageDeleter
}

// DI
func NewProductUsecase(
	productRepo repo.ProductRepository,
	inventoryRepo repo.InventoryRepository,
	images ImageDeleter,
) *ProductUsecase {
	return &ProductUsecase{
		productRepo:   productRepo,
		inventoryRepo: inventoryRepo,
		images:        images,
	}
}

type ProductListOutput struct {
	Items []model.Product `json:"items"`
	Total int             `json:"total"`
}

// 公開ビュー（在庫ありのみ）
func (u *ProductUsecase) ListPublicProducts(ctx context.Context) (ProductListOutput, error) {
	items, err := u.productRepo.List(ctx, true)
	if err != nil {
		return ProductListOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return ProductListOutput{Items: items, Total: len(items)}, nil
}

// 管理ビュー（在庫0も含む全件）
func (u *ProductUsecase) ListInventory(ctx context.Context) (ProductListOutput, error) {
	items, err := u.productRepo.List(ctx, false)
	if err != nil {
		return ProductListOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return ProductListOutput{Items: items, Total: len(items)}, nil
}

func (u *ProductUsecase) GetProductDetail(ctx context.Context, productID int64) (model.Product, error) {
	if productID <= 0 {
		return model.Product{}, NewHTTPError(http.StatusBadRequest, "invalid product id")
	}

	p, err := u.productRepo.FindByID(ctx, productID)
	if err == repo.ErrNotFound {
		return model.Product{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return model.Product{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return p, nil
}

type CreateProductInput struct {
	Name      string
	Quantity  int64
	Price     int64 // センタボ
	ImagePath *string
}

func (u *ProductUsecase) CreateProduct(ctx context.Context, in CreateProductInput) (model.Product, error) {
	if err := validateProductInput(in); err != nil {
		return model.Product{}, err
	}

	created, err := u.productRepo.Create(ctx, model.Product{
		Name:      strings.TrimSpace(in.Name),
		Quantity:  in.Quantity,
		Price:     in.Price,
		ImagePath: in.ImagePath,
	})
	if err != nil {
		return model.Product{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return created, nil
}

func (u *ProductUsecase) UpdateProduct(ctx context.Context, productID int64, in CreateProductInput) error {
	if productID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid product id")
	}
	if err := validateProductInput(in); err != nil {
		return err
	}

	err := u.productRepo.Update(ctx, model.Product{
		ID:        productID,
		Name:      strings.TrimSpace(in.Name),
		Quantity:  in.Quantity,
		Price:     in.Price,
		ImagePath: in.ImagePath,
	})
	if err == repo.ErrNotFound {
		return NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return nil
}

// 削除成功後の画像削除はベストエフォート（失敗はログのみ）
func (u *ProductUsecase) DeleteProduct(ctx context.Context, productID int64) error {
	if productID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid product id")
	}

	p, err := u.productRepo.FindByID(ctx, productID)
	if err == repo.ErrNotFound {
		return NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}

	if err := u.productRepo.Delete(ctx, productID); err != nil {
		if err == repo.ErrNotFound {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}

	if p.ImagePath != nil && *p.ImagePath != "" {
		if err := u.images.Delete(*p.ImagePath); err != nil {
			log.Printf("delete image %s: %v", *p.ImagePath, err)
		}
	}

	return nil
}

type AdjustStockInput struct {
	Quantity  int64
	Direction repo.AdjustDirection
}

// 在庫の相対更新（管理画面とチェックアウト後のリコンシリエーションが使う）
func (u *ProductUsecase) AdjustStock(ctx context.Context, productID int64, in AdjustStockInput) error {
	if productID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid product id")
	}
	if in.Quantity <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid quantity")
	}
	if in.Direction != repo.AdjustIncrease && in.Direction != repo.AdjustDecrease {
		return NewHTTPError(http.StatusBadRequest, "invalid direction")
	}

	err := u.inventoryRepo.AdjustQuantity(ctx, productID, in.Quantity, in.Direction)
	if err == repo.ErrNotFound {
		return NewHTTPError(http.StatusNotFound, "not found")
	}
	if err == repo.ErrInsufficientStock {
		return NewHTTPError(http.StatusConflict, "insufficient stock")
	}
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return nil
}

func validateProductInput(in CreateProductInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return NewHTTPError(http.StatusBadRequest, "name is required")
	}
	if in.Quantity < 0 {
		return NewHTTPError(http.StatusBadRequest, "quantity must be >= 0")
	}
	if in.Price <= 0 {
		return NewHTTPError(http.StatusBadRequest, "price must be > 0")
	}
	return nil
}
