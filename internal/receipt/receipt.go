package receipt

import (
	"encoding/xml"
	"time"

	"storefront/internal/domain/money"
)

// 購入1行分（確定時点のスナップショット）
type Line struct {
	ProductID int64
	Name      string
	UnitPrice int64 // センタボ
	Quantity  int64
}

// 元システムの <recibo> XMLと同じ構造。
type Document struct {
	XMLName       xml.Name `xml:"recibo"`
	Store         string   `xml:"tienda"`
	TransactionID string   `xml:"transactionId"`
	Date          string   `xml:"fecha"`
	Products      products `xml:"productos"`
	Summary       summary  `xml:"resumen"`
}

type products struct {
	Items []item `xml:"producto"`
}

type item struct {
	ID       int64  `xml:"id,attr"`
	Name     string `xml:"nombre"`
	Price    string `xml:"precio"`
	Quantity int64  `xml:"cantidad"`
}

type summary struct {
	Subtotal string `xml:"subtotal"`
	Tax      string `xml:"iva"`
	Total    string `xml:"total"`
}

// Buildは純粋関数。同じ入力なら同じ文書（fechaはtsで決まる）。
func Build(store string, transactionID string, ts time.Time, lines []Line, subtotal int64, tax int64, total int64) Document {
	items := make([]item, 0, len(lines))
	for _, l := range lines {
		items = append(items, item{
			ID:       l.ProductID,
			Name:     l.Name,
			Price:    money.Format(l.UnitPrice),
			Quantity: l.Quantity,
		})
	}

	return Document{
		Store:         store,
		TransactionID: transactionID,
		Date:          ts.UTC().Format(time.RFC3339),
		Products:      products{Items: items},
		Summary: summary{
			Subtotal: money.Format(subtotal),
			Tax:      money.Format(tax),
			Total:    money.Format(total),
		},
	}
}

// XMLはヘッダ付きで整形出力する。
// 商品名のエスケープはencoding/xmlに任せる（レシートを壊す文字を含めない）。
func (d Document) XML() (string, error) {
	raw, err := xml.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", err
	}
	return xml.Header + string(raw), nil
}
