package usecase_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"
	"storefront/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// =====================
// Helper
// =====================

func newCheckoutFixture() (*usecase.CheckoutUsecase, *MockPaymentGateway, *MockCartItemRepo, *MockProductRepo, *MockInventoryRepo) {
	gateway := new(MockPaymentGateway)
	cartRepo := new(MockCartItemRepo)
	productRepo := new(MockProductRepo)
	invRepo := new(MockInventoryRepo)
	uc := usecase.NewCheckoutUsecase(gateway, cartRepo, productRepo, invRepo, "Tienda")
	return uc, gateway, cartRepo, productRepo, invRepo
}

// user 7 のカートに商品を積む
func stubCart(cartRepo *MockCartItemRepo, productRepo *MockProductRepo, items []model.CartItem, products map[int64]model.Product) {
	cartRepo.On("ListByUserID", mock.Anything, int64(7)).Return(items, nil)
	for id, p := range products {
		productRepo.On("FindByID", mock.Anything, id).Return(p, nil)
	}
}

// =====================
// Quote
// =====================

func TestCheckoutUsecase_Quote_ComputesTotals(t *testing.T) {
	uc, _, cartRepo, productRepo, _ := newCheckoutFixture()

	stubCart(cartRepo, productRepo,
		[]model.CartItem{{ID: 1, UserID: 7, ProductID: 5, Quantity: 1}},
		map[int64]model.Product{
			5: {ID: 5, Name: "Auriculares", Quantity: 3, Price: 19999},
		})

	out, err := uc.Quote(context.Background(), 7)
	assert.NoError(t, err)
	// 199.99 → IVA 31.99（端数切り捨て）→ 231.98
	assert.Equal(t, int64(19999), out.Subtotal)
	assert.Equal(t, int64(3199), out.Tax)
	assert.Equal(t, int64(23198), out.Total)
	assert.Len(t, out.Items, 1)
}

func TestCheckoutUsecase_Quote_EmptyCart(t *testing.T) {
	uc, _, cartRepo, _, _ := newCheckoutFixture()

	cartRepo.On("ListByUserID", mock.Anything, int64(7)).Return([]model.CartItem{}, nil)

	_, err := uc.Quote(context.Background(), 7)
	assertErrContains(t, err, "cart empty")
}

// =====================
// CreateOrder
// =====================

func TestCheckoutUsecase_CreateOrder_PassesTotalsToGateway(t *testing.T) {
	uc, gateway, cartRepo, productRepo, _ := newCheckoutFixture()

	stubCart(cartRepo, productRepo,
		[]model.CartItem{
			{ID: 1, UserID: 7, ProductID: 1, Quantity: 2},
			{ID: 2, UserID: 7, ProductID: 2, Quantity: 1},
		},
		map[int64]model.Product{
			1: {ID: 1, Name: "Teclado", Quantity: 10, Price: 10000},
			2: {ID: 2, Name: "Mouse", Quantity: 5, Price: 5000},
		})

	// subtotal 250.00 / IVA 40.00 / total 290.00
	gateway.On("CreateOrder", mock.Anything, mock.MatchedBy(func(o usecase.PaymentOrder) bool {
		return o.Subtotal == 25000 && o.Tax == 4000 && o.Total == 29000 && len(o.Items) == 2
	})).Return("ORDER-1", nil)

	out, err := uc.CreateOrder(context.Background(), 7)
	assert.NoError(t, err)
	assert.Equal(t, "ORDER-1", out.OrderID)
	gateway.AssertExpectations(t)
}

func TestCheckoutUsecase_CreateOrder_TruncatesLongItemName(t *testing.T) {
	uc, gateway, cartRepo, productRepo, _ := newCheckoutFixture()

	longName := strings.Repeat("x", 200)
	stubCart(cartRepo, productRepo,
		[]model.CartItem{{ID: 1, UserID: 7, ProductID: 9, Quantity: 1}},
		map[int64]model.Product{
			9: {ID: 9, Name: longName, Quantity: 1, Price: 1000},
		})

	gateway.On("CreateOrder", mock.Anything, mock.MatchedBy(func(o usecase.PaymentOrder) bool {
		return len(o.Items) == 1 && len(o.Items[0].Name) == 127 && o.Items[0].SKU == "9"
	})).Return("ORDER-2", nil)

	_, err := uc.CreateOrder(context.Background(), 7)
	assert.NoError(t, err)
	gateway.AssertExpectations(t)
}

func TestCheckoutUsecase_CreateOrder_EmptyCart(t *testing.T) {
	uc, gateway, cartRepo, _, _ := newCheckoutFixture()

	cartRepo.On("ListByUserID", mock.Anything, int64(7)).Return([]model.CartItem{}, nil)

	_, err := uc.CreateOrder(context.Background(), 7)
	assertErrContains(t, err, "cart empty")
	gateway.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
}

func TestCheckoutUsecase_CreateOrder_GatewayDown(t *testing.T) {
	uc, gateway, cartRepo, productRepo, _ := newCheckoutFixture()

	stubCart(cartRepo, productRepo,
		[]model.CartItem{{ID: 1, UserID: 7, ProductID: 5, Quantity: 1}},
		map[int64]model.Product{
			5: {ID: 5, Name: "Auriculares", Quantity: 3, Price: 19999},
		})

	gateway.On("CreateOrder", mock.Anything, mock.Anything).Return("", errors.New("timeout")).Once()
	gateway.On("CreateOrder", mock.Anything, mock.Anything).Return("ORDER-3", nil).Once()

	_, err := uc.CreateOrder(context.Background(), 7)
	assertErrContains(t, err, "payment provider unavailable")

	// 失敗後はリトライできる
	out, err := uc.CreateOrder(context.Background(), 7)
	assert.NoError(t, err)
	assert.Equal(t, "ORDER-3", out.OrderID)
}

// =====================
// Capture
// =====================

func TestCheckoutUsecase_Capture_HappyPath(t *testing.T) {
	uc, gateway, cartRepo, productRepo, invRepo := newCheckoutFixture()

	stubCart(cartRepo, productRepo,
		[]model.CartItem{{ID: 1, UserID: 7, ProductID: 5, Quantity: 1}},
		map[int64]model.Product{
			5: {ID: 5, Name: "Auriculares", Quantity: 3, Price: 19999},
		})

	gateway.On("CreateOrder", mock.Anything, mock.Anything).Return("ORDER-1", nil)
	gateway.On("CaptureOrder", mock.Anything, "ORDER-1").Return(usecase.PaymentCapture{TransactionID: "TX-1"}, nil)
	invRepo.On("AdjustQuantity", mock.Anything, int64(5), int64(1), repo.AdjustDecrease).Return(nil)
	cartRepo.On("DeleteByUserID", mock.Anything, int64(7)).Return(nil)

	_, err := uc.CreateOrder(context.Background(), 7)
	assert.NoError(t, err)

	res, err := uc.Capture(context.Background(), 7, "ORDER-1")
	assert.NoError(t, err)
	assert.Equal(t, "TX-1", res.TransactionID)
	assert.Equal(t, int64(23198), res.Total)
	assert.Empty(t, res.FallosStock)
	assert.True(t, res.CartCleared)

	// レシートには表示金額がそのまま載る
	assert.Contains(t, res.ReceiptXML, "<tienda>Tienda</tienda>")
	assert.Contains(t, res.ReceiptXML, "<transactionId>TX-1</transactionId>")
	assert.Contains(t, res.ReceiptXML, "<subtotal>199.99</subtotal>")
	assert.Contains(t, res.ReceiptXML, "<iva>31.99</iva>")
	assert.Contains(t, res.ReceiptXML, "<total>231.98</total>")

	invRepo.AssertExpectations(t)
	cartRepo.AssertCalled(t, "DeleteByUserID", mock.Anything, int64(7))
}

// 在庫減算の一部失敗は購入失敗にしない。
// 失敗した明細だけfallosStockに載り、カートは残る。
func TestCheckoutUsecase_Capture_PartialStockFailure(t *testing.T) {
	uc, gateway, cartRepo, productRepo, invRepo := newCheckoutFixture()

	stubCart(cartRepo, productRepo,
		[]model.CartItem{
			{ID: 1, UserID: 7, ProductID: 1, Quantity: 2},
			{ID: 2, UserID: 7, ProductID: 2, Quantity: 1},
		},
		map[int64]model.Product{
			1: {ID: 1, Name: "Teclado", Quantity: 10, Price: 10000},
			2: {ID: 2, Name: "Mouse", Quantity: 0, Price: 5000},
		})

	gateway.On("CreateOrder", mock.Anything, mock.Anything).Return("ORDER-1", nil)
	gateway.On("CaptureOrder", mock.Anything, "ORDER-1").Return(usecase.PaymentCapture{TransactionID: "TX-1"}, nil)
	invRepo.On("AdjustQuantity", mock.Anything, int64(1), int64(2), repo.AdjustDecrease).Return(nil)
	invRepo.On("AdjustQuantity", mock.Anything, int64(2), int64(1), repo.AdjustDecrease).Return(repo.ErrInsufficientStock)

	_, err := uc.CreateOrder(context.Background(), 7)
	assert.NoError(t, err)

	res, err := uc.Capture(context.Background(), 7, "ORDER-1")
	assert.NoError(t, err)
	assert.Equal(t, "TX-1", res.TransactionID)
	assert.Equal(t, int64(29000), res.Total)

	if assert.Len(t, res.FallosStock, 1) {
		assert.Equal(t, int64(2), res.FallosStock[0].ProductID)
		assert.Equal(t, "Mouse", res.FallosStock[0].ProductName)
	}

	// カートはクリアしない（確認用に残す）
	assert.False(t, res.CartCleared)
	cartRepo.AssertNotCalled(t, "DeleteByUserID", mock.Anything, mock.Anything)

	// 成功した明細のロールバックもしない
	invRepo.AssertNotCalled(t, "AdjustQuantity", mock.Anything, int64(1), int64(2), repo.AdjustIncrease)
}

// 同じ注文を二度captureしない（外部APIを二度目は呼ばない）
func TestCheckoutUsecase_Capture_AtMostOnce(t *testing.T) {
	uc, gateway, cartRepo, productRepo, invRepo := newCheckoutFixture()

	stubCart(cartRepo, productRepo,
		[]model.CartItem{{ID: 1, UserID: 7, ProductID: 5, Quantity: 1}},
		map[int64]model.Product{
			5: {ID: 5, Name: "Auriculares", Quantity: 3, Price: 19999},
		})

	gateway.On("CreateOrder", mock.Anything, mock.Anything).Return("ORDER-1", nil)
	gateway.On("CaptureOrder", mock.Anything, "ORDER-1").Return(usecase.PaymentCapture{TransactionID: "TX-1"}, nil)
	invRepo.On("AdjustQuantity", mock.Anything, int64(5), int64(1), repo.AdjustDecrease).Return(nil)
	cartRepo.On("DeleteByUserID", mock.Anything, int64(7)).Return(nil)

	_, err := uc.CreateOrder(context.Background(), 7)
	assert.NoError(t, err)

	_, err = uc.Capture(context.Background(), 7, "ORDER-1")
	assert.NoError(t, err)

	_, err = uc.Capture(context.Background(), 7, "ORDER-1")
	assert.Error(t, err)

	gateway.AssertNumberOfCalls(t, "CaptureOrder", 1)
	invRepo.AssertNumberOfCalls(t, "AdjustQuantity", 1)
}

func TestCheckoutUsecase_Capture_GatewayFailureLeavesCart(t *testing.T) {
	uc, gateway, cartRepo, productRepo, invRepo := newCheckoutFixture()

	stubCart(cartRepo, productRepo,
		[]model.CartItem{{ID: 1, UserID: 7, ProductID: 5, Quantity: 1}},
		map[int64]model.Product{
			5: {ID: 5, Name: "Auriculares", Quantity: 3, Price: 19999},
		})

	gateway.On("CreateOrder", mock.Anything, mock.Anything).Return("ORDER-1", nil)
	gateway.On("CaptureOrder", mock.Anything, "ORDER-1").Return(usecase.PaymentCapture{}, errors.New("declined"))

	_, err := uc.CreateOrder(context.Background(), 7)
	assert.NoError(t, err)

	_, err = uc.Capture(context.Background(), 7, "ORDER-1")
	assertErrContains(t, err, "payment failed")

	// 在庫もカートも触らない
	invRepo.AssertNotCalled(t, "AdjustQuantity", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	cartRepo.AssertNotCalled(t, "DeleteByUserID", mock.Anything, mock.Anything)
}

func TestCheckoutUsecase_Capture_UnknownOrder(t *testing.T) {
	uc, gateway, _, _, _ := newCheckoutFixture()

	_, err := uc.Capture(context.Background(), 7, "ORDER-X")
	assertErrContains(t, err, "order not found")
	gateway.AssertNotCalled(t, "CaptureOrder", mock.Anything, mock.Anything)
}

// =====================
// Cancel
// =====================

func TestCheckoutUsecase_Cancel_BeforeCapture(t *testing.T) {
	uc, gateway, cartRepo, productRepo, invRepo := newCheckoutFixture()

	stubCart(cartRepo, productRepo,
		[]model.CartItem{{ID: 1, UserID: 7, ProductID: 5, Quantity: 1}},
		map[int64]model.Product{
			5: {ID: 5, Name: "Auriculares", Quantity: 3, Price: 19999},
		})

	gateway.On("CreateOrder", mock.Anything, mock.Anything).Return("ORDER-1", nil)

	_, err := uc.CreateOrder(context.Background(), 7)
	assert.NoError(t, err)

	err = uc.Cancel(context.Background(), 7, "ORDER-1")
	assert.NoError(t, err)

	// キャンセル後のcaptureは通らない
	_, err = uc.Capture(context.Background(), 7, "ORDER-1")
	assertErrContains(t, err, "order not found")

	// 副作用なし
	gateway.AssertNotCalled(t, "CaptureOrder", mock.Anything, mock.Anything)
	invRepo.AssertNotCalled(t, "AdjustQuantity", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	cartRepo.AssertNotCalled(t, "DeleteByUserID", mock.Anything, mock.Anything)
}

func TestCheckoutUsecase_Cancel_NoSession(t *testing.T) {
	uc, _, _, _, _ := newCheckoutFixture()

	err := uc.Cancel(context.Background(), 7, "ORDER-1")
	assertErrContains(t, err, "order not found")
}
