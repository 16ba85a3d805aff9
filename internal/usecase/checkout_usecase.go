package usecase

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"storefront/internal/domain/money"
	"storefront/internal/receipt"
	repo "storefront/internal/repository"

	"github.com/google/uuid"
)

// チェックアウトの状態
type CheckoutState string

const (
	StateIdle            CheckoutState = "IDLE"
	StateAwaitingPayment CheckoutState = "AWAITING_PAYMENT"
	StateOrderCreated    CheckoutState = "ORDER_CREATED"
	StateCapturing       CheckoutState = "CAPTURING"
	StateReconciling     CheckoutState = "RECONCILING"
	StateCompleted       CheckoutState = "COMPLETED"
	StateCancelled       CheckoutState = "CANCELLED"
)

// PayPalのitem nameの上限
const maxLineItemName = 127

// ユーザーごとのチェックアウト試行。
// レシートは永続化しない。captureが成功したのにプロセスが落ちた場合の
// 復旧記録は持たない（現設計の既知のギャップ）。
type checkoutSession struct {
	id       string
	state    CheckoutState
	orderID  string
	snapshot []receipt.Line // 注文作成時点のカート
	subtotal int64
	tax      int64
	total    int64
}

// CheckoutUsecase がチェックアウトの状態機械。
// 決済は注入されたPaymentGatewayの2メソッドにだけ依存する。
type CheckoutUsecase struct {
	gateway     PaymentGateway
	cartRepo    repo.CartItemRepository
	productRepo repo.ProductRepository
	invRepo     repo.InventoryRepository

	storeName string
	now       func() time.Time

	mu        sync.Mutex
	sessions  map[int64]*checkoutSession // userID -> 進行中の試行
	completed map[string]bool            // リコンシリエーション済みtransaction id
}

func NewCheckoutUsecase(
	gateway PaymentGateway,
	cartRepo repo.CartItemRepository,
	productRepo repo.ProductRepository,
	invRepo repo.InventoryRepository,
	storeName string,
) *CheckoutUsecase {
	return &CheckoutUsecase{
		gateway:     gateway,
		cartRepo:    cartRepo,
		productRepo: productRepo,
		invRepo:     invRepo,
		storeName:   storeName,
		now:         time.Now,
		sessions:    make(map[int64]*checkoutSession),
		completed:   make(map[string]bool),
	}
}

type QuoteItem struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int64  `json:"quantity"`
}

type QuoteOutput struct {
	Items    []QuoteItem `json:"items"`
	Subtotal int64       `json:"subtotal"`
	Tax      int64       `json:"tax"`
	Total    int64       `json:"total"`
}

type CreateOrderOutput struct {
	OrderID string `json:"order_id"`
}

type StockFailure struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	Message     string `json:"message"`
}

// captureの結果。リコンシリエーション失敗は購入失敗ではない：
// fallosStockに失敗分を載せたまま成功として返す。
type CheckoutResult struct {
	TransactionID string         `json:"transaction_id"`
	Items         []QuoteItem    `json:"items"`
	Subtotal      int64          `json:"subtotal"`
	Tax           int64          `json:"tax"`
	Total         int64          `json:"total"`
	ReceiptXML    string         `json:"receipt_xml"`
	FallosStock   []StockFailure `json:"fallosStock,omitempty"`
	CartCleared   bool           `json:"cart_cleared"`
}

// Quote は合計を計算して支払いUI待ちに進む。
func (u *CheckoutUsecase) Quote(ctx context.Context, userID int64) (QuoteOutput, error) {
	if userID <= 0 {
		return QuoteOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	lines, err := u.loadCartSnapshot(ctx, userID)
	if err != nil {
		return QuoteOutput{}, err
	}
	if len(lines) == 0 {
		return QuoteOutput{}, NewHTTPError(http.StatusBadRequest, "cart empty")
	}

	subtotal, tax, total := totals(lines)
	if total <= 0 {
		return QuoteOutput{}, NewHTTPError(http.StatusBadRequest, "invalid order total")
	}

	u.mu.Lock()
	s := u.sessions[userID]
	if s == nil || s.state == StateCompleted || s.state == StateCancelled {
		s = &checkoutSession{id: uuid.NewString(), state: StateIdle}
		u.sessions[userID] = s
	}
	if s.state == StateIdle {
		s.state = StateAwaitingPayment
	}
	u.mu.Unlock()

	return QuoteOutput{
		Items:    toQuoteItems(lines),
		Subtotal: subtotal,
		Tax:      tax,
		Total:    total,
	}, nil
}

// CreateOrder は外部決済に注文を作らせる。
// 失敗はAwaitingPaymentに戻すだけで、captureには絶対に進まない。
func (u *CheckoutUsecase) CreateOrder(ctx context.Context, userID int64) (CreateOrderOutput, error) {
	if userID <= 0 {
		return CreateOrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	// 提出時点のカートで再計算する（Quoteから変わっているかもしれない）
	lines, err := u.loadCartSnapshot(ctx, userID)
	if err != nil {
		return CreateOrderOutput{}, err
	}
	if len(lines) == 0 {
		return CreateOrderOutput{}, NewHTTPError(http.StatusBadRequest, "cart empty")
	}

	subtotal, tax, total := totals(lines)
	if total <= 0 {
		return CreateOrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid order total")
	}

	u.mu.Lock()
	s := u.sessions[userID]
	if s == nil || s.state == StateCompleted || s.state == StateCancelled {
		s = &checkoutSession{id: uuid.NewString(), state: StateAwaitingPayment}
		u.sessions[userID] = s
	}
	if s.state != StateAwaitingPayment && s.state != StateOrderCreated {
		u.mu.Unlock()
		return CreateOrderOutput{}, NewHTTPError(http.StatusConflict, "checkout in progress")
	}
	u.mu.Unlock()

	items := make([]PaymentLineItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, PaymentLineItem{
			Name:      truncate(l.Name, maxLineItemName),
			SKU:       strconv.FormatInt(l.ProductID, 10),
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
		})
	}

	orderID, err := u.gateway.CreateOrder(ctx, PaymentOrder{
		Subtotal: subtotal,
		Tax:      tax,
		Total:    total,
		Items:    items,
	})
	if err != nil {
		u.mu.Lock()
		s.state = StateAwaitingPayment
		u.mu.Unlock()
		return CreateOrderOutput{}, NewHTTPError(http.StatusBadGateway, "payment provider unavailable")
	}

	u.mu.Lock()
	s.state = StateOrderCreated
	s.orderID = orderID
	s.snapshot = lines
	s.subtotal = subtotal
	s.tax = tax
	s.total = total
	u.mu.Unlock()

	return CreateOrderOutput{OrderID: orderID}, nil
}

// Capture は支払いを確定し、在庫をリコンシリエーションしてレシートを作る。
// 同じ注文に対してcaptureを二度呼ぶことはない。
func (u *CheckoutUsecase) Capture(ctx context.Context, userID int64, orderID string) (CheckoutResult, error) {
	if userID <= 0 {
		return CheckoutResult{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	u.mu.Lock()
	s := u.sessions[userID]
	if s == nil || s.orderID == "" || s.orderID != orderID {
		u.mu.Unlock()
		return CheckoutResult{}, NewHTTPError(http.StatusNotFound, "order not found")
	}
	if s.state != StateOrderCreated {
		// Capturing以降なら二重capture。呼ばずに拒否する。
		u.mu.Unlock()
		return CheckoutResult{}, NewHTTPError(http.StatusConflict, "order already captured")
	}
	s.state = StateCapturing
	snapshot := s.snapshot
	subtotal, tax, total := s.subtotal, s.tax, s.total
	u.mu.Unlock()

	captured, err := u.gateway.CaptureOrder(ctx, orderID)
	if err != nil {
		// 失敗はこの試行では終端。カートには触れない。
		u.mu.Lock()
		s.state = StateAwaitingPayment
		u.mu.Unlock()
		return CheckoutResult{}, NewHTTPError(http.StatusBadGateway, "payment failed")
	}

	u.mu.Lock()
	if u.completed[captured.TransactionID] {
		//同じtransaction idのリコンシリエーションは二度走らせない
		u.mu.Unlock()
		return CheckoutResult{}, NewHTTPError(http.StatusConflict, "transaction already reconciled")
	}
	s.state = StateReconciling
	u.mu.Unlock()

	failures := u.reconcileStock(ctx, snapshot)

	// 支払いは確定済みなので、在庫失敗があっても購入は成立として完了する
	doc := receipt.Build(u.storeName, captured.TransactionID, u.now(), snapshot, subtotal, tax, total)
	xmlDoc, err := doc.XML()
	if err != nil {
		xmlDoc = ""
	}

	cleared := false
	if len(failures) == 0 {
		if err := u.cartRepo.DeleteByUserID(ctx, userID); err == nil {
			cleared = true
		}
	}
	// 失敗があればカートは残す（ユーザー/サポートの確認用）

	u.mu.Lock()
	u.completed[captured.TransactionID] = true
	s.state = StateCompleted
	delete(u.sessions, userID)
	u.mu.Unlock()

	return CheckoutResult{
		TransactionID: captured.TransactionID,
		Items:         toQuoteItems(snapshot),
		Subtotal:      subtotal,
		Tax:           tax,
		Total:         total,
		ReceiptXML:    xmlDoc,
		FallosStock:   failures,
		CartCleared:   cleared,
	}, nil
}

// Cancel はcapture前の明示キャンセル。副作用なし。
func (u *CheckoutUsecase) Cancel(ctx context.Context, userID int64, orderID string) error {
	if userID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	s := u.sessions[userID]
	if s == nil {
		return NewHTTPError(http.StatusNotFound, "order not found")
	}
	if orderID != "" && s.orderID != "" && s.orderID != orderID {
		return NewHTTPError(http.StatusNotFound, "order not found")
	}
	if s.state != StateAwaitingPayment && s.state != StateOrderCreated {
		return NewHTTPError(http.StatusConflict, "capture already started")
	}

	s.state = StateCancelled
	delete(u.sessions, userID)
	return nil
}

// 明細ごとに独立した減算を並行で投げ、全部の結果を待つ。
// 先に失敗しても他を止めないし、成功分のロールバックもしない
// （補償は手動対応。支払いを守る方を優先する）。
func (u *CheckoutUsecase) reconcileStock(ctx context.Context, lines []receipt.Line) []StockFailure {
	errs := make([]error, len(lines))
	var wg sync.WaitGroup

	for i, l := range lines {
		wg.Add(1)
		go func(i int, l receipt.Line) {
			defer wg.Done()
			errs[i] = u.invRepo.AdjustQuantity(ctx, l.ProductID, l.Quantity, repo.AdjustDecrease)
		}(i, l)
	}
	wg.Wait()

	var failures []StockFailure
	for i, err := range errs {
		if err == nil {
			continue
		}
		failures = append(failures, StockFailure{
			ProductID:   lines[i].ProductID,
			ProductName: lines[i].Name,
			Message:     err.Error(),
		})
	}
	return failures
}

// カートを現在の商品情報でスナップショットする
func (u *CheckoutUsecase) loadCartSnapshot(ctx context.Context, userID int64) ([]receipt.Line, error) {
	items, err := u.cartRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	lines := make([]receipt.Line, 0, len(items))
	for _, it := range items {
		p, err := u.productRepo.FindByID(ctx, it.ProductID)
		if err != nil {
			continue
		}
		lines = append(lines, receipt.Line{
			ProductID: it.ProductID,
			Name:      p.Name,
			UnitPrice: p.Price,
			Quantity:  it.Quantity,
		})
	}
	return lines, nil
}

func totals(lines []receipt.Line) (subtotal int64, tax int64, total int64) {
	for _, l := range lines {
		subtotal += l.UnitPrice * l.Quantity
	}
	tax = money.Tax(subtotal)
	return subtotal, tax, subtotal + tax
}

func toQuoteItems(lines []receipt.Line) []QuoteItem {
	items := make([]QuoteItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, QuoteItem{
			ProductID: l.ProductID,
			Name:      l.Name,
			Price:     l.UnitPrice,
			Quantity:  l.Quantity,
		})
	}
	return items
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
