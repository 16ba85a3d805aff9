package repository

import (
	"context"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"gorm.io/gorm"
)

type InventoryGormRepository struct {
	db *gorm.DB
}

func NewInventoryGormRepository(db *gorm.DB) *InventoryGormRepository {
	return &InventoryGormRepository{db: db}
}

// 在庫の相対更新。1 UPDATE文で条件込みにして行単位のアトミック性を保つ。
func (r *InventoryGormRepository) AdjustQuantity(ctx context.Context, productID int64, qty int64, dir repo.AdjustDirection) error {
	if dir == repo.AdjustDecrease {
		res := r.db.WithContext(ctx).
			Model(&model.Product{}).
			Where("id = ? AND quantity >= ?", productID, qty).
			Update("quantity", gorm.Expr("quantity - ?", qty))

		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// 行が無いのか在庫不足なのかを区別する
			var count int64
			if err := r.db.WithContext(ctx).Model(&model.Product{}).Where("id = ?", productID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return repo.ErrNotFound
			}
			return repo.ErrInsufficientStock
		}
		return nil
	}

	res := r.db.WithContext(ctx).
		Model(&model.Product{}).
		Where("id = ?", productID).
		Update("quantity", gorm.Expr("quantity + ?", qty))

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}
