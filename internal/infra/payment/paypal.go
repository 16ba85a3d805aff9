package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"storefront/internal/config"
	"storefront/internal/domain/money"
	"storefront/internal/usecase"
)

// PayPal REST v2 の createOrder / captureOrder クライアント。
// usecase.PaymentGateway の実装。
type PayPalClient struct {
	apiBase  string
	clientID string
	secret   string
	currency string
	http     *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewPayPalClient(cfg config.Config) *PayPalClient {
	return &PayPalClient{
		apiBase:  strings.TrimRight(cfg.PayPalAPIBase, "/"),
		clientID: cfg.PayPalClientID,
		secret:   cfg.PayPalSecret,
		currency: cfg.Currency,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

type amountJSON struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type itemJSON struct {
	Name       string     `json:"name"`
	UnitAmount amountJSON `json:"unit_amount"`
	Quantity   string     `json:"quantity"`
	SKU        string     `json:"sku"`
	Category   string     `json:"category"`
}

type purchaseUnitJSON struct {
	Amount struct {
		amountJSON
		Breakdown struct {
			ItemTotal amountJSON `json:"item_total"`
			TaxTotal  amountJSON `json:"tax_total"`
		} `json:"breakdown"`
	} `json:"amount"`
	Items []itemJSON `json:"items"`
}

type createOrderRequest struct {
	Intent        string             `json:"intent"`
	PurchaseUnits []purchaseUnitJSON `json:"purchase_units"`
}

type orderResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []struct {
				ID string `json:"id"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

// 注文作成。item名は呼び出し側で127文字に切られている前提だが、ここでも保険はしない。
func (c *PayPalClient) CreateOrder(ctx context.Context, order usecase.PaymentOrder) (string, error) {
	items := make([]itemJSON, 0, len(order.Items))
	for _, it := range order.Items {
		items = append(items, itemJSON{
			Name:       it.Name,
			UnitAmount: amountJSON{CurrencyCode: c.currency, Value: money.Format(it.UnitPrice)},
			Quantity:   strconv.FormatInt(it.Quantity, 10),
			SKU:        it.SKU,
			Category:   "PHYSICAL_GOODS",
		})
	}

	var pu purchaseUnitJSON
	pu.Amount.CurrencyCode = c.currency
	pu.Amount.Value = money.Format(order.Total)
	pu.Amount.Breakdown.ItemTotal = amountJSON{CurrencyCode: c.currency, Value: money.Format(order.Subtotal)}
	pu.Amount.Breakdown.TaxTotal = amountJSON{CurrencyCode: c.currency, Value: money.Format(order.Tax)}
	pu.Items = items

	reqBody := createOrderRequest{
		Intent:        "CAPTURE",
		PurchaseUnits: []purchaseUnitJSON{pu},
	}

	var res orderResponse
	if err := c.post(ctx, "/v2/checkout/orders", reqBody, &res); err != nil {
		return "", err
	}
	if res.ID == "" {
		return "", fmt.Errorf("paypal: create order returned no id")
	}
	return res.ID, nil
}

// 支払い確定。transaction idはcaptureのID（無ければorder ID）。
func (c *PayPalClient) CaptureOrder(ctx context.Context, orderID string) (usecase.PaymentCapture, error) {
	var res orderResponse
	path := "/v2/checkout/orders/" + url.PathEscape(orderID) + "/capture"
	if err := c.post(ctx, path, struct{}{}, &res); err != nil {
		return usecase.PaymentCapture{}, err
	}
	if res.Status != "COMPLETED" {
		return usecase.PaymentCapture{}, fmt.Errorf("paypal: capture status %q", res.Status)
	}

	txID := res.ID
	if len(res.PurchaseUnits) > 0 && len(res.PurchaseUnits[0].Payments.Captures) > 0 {
		txID = res.PurchaseUnits[0].Payments.Captures[0].ID
	}
	return usecase.PaymentCapture{TransactionID: txID}, nil
}

func (c *PayPalClient) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("paypal: %s -> %d: %s", path, resp.StatusCode, string(msg))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// client_credentialsでアクセストークン取得（期限内はキャッシュ）
func (c *PayPalClient) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.clientID, c.secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("paypal: token -> %d: %s", resp.StatusCode, string(msg))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", err
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("paypal: empty access token")
	}

	c.accessToken = tr.AccessToken
	// 期限ぎりぎりを避ける
	c.tokenExpiry = time.Now().Add(time.Duration(tr.ExpiresIn-60) * time.Second)

	return c.accessToken, nil
}
