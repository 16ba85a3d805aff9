package usecase

import "context"

// 外部決済の1行分
type PaymentLineItem struct {
	Name      string // 127文字に切り詰め済み
	SKU       string // 商品ID
	UnitPrice int64  // センタボ
	Quantity  int64
}

// createOrderに渡す注文内容（金額はすべてセンタボ）
type PaymentOrder struct {
	Subtotal int64
	Tax      int64
	Total    int64
	Items    []PaymentLineItem
}

type PaymentCapture struct {
	TransactionID string
}

// PaymentGateway は外部決済の2メソッド契約。
// オーケストレータはこれだけに依存する（テストはダブルを注入）。
type PaymentGateway interface {
	CreateOrder(ctx context.Context, order PaymentOrder) (string, error)
	CaptureOrder(ctx context.Context, orderID string) (PaymentCapture, error)
}
