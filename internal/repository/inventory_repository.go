package repository

import (
	"context"
	"errors"
)

// 減算で在庫が負になる場合
var ErrInsufficientStock = errors.New("insufficient stock")

type AdjustDirection string

const (
	AdjustIncrease AdjustDirection = "increase"
	AdjustDecrease AdjustDirection = "decrease"
)

// 在庫数の相対更新を約束。
// 1行単位でアトミックであること（read-check-writeを分けない）。
type InventoryRepository interface {
	// decreaseで残が足りなければ ErrInsufficientStock（行は変更しない）
	AdjustQuantity(ctx context.Context, productID int64, qty int64, dir AdjustDirection) error
}
