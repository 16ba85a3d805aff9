package money

import "fmt"

// 金額はセンタボ（最小通貨単位）のint64で扱う。
// IVAは16%、端数は切り捨て（画面・レシート・PayPalで同じ値になる）。
const TaxRatePercent = 16

func Tax(subtotalCents int64) int64 {
	return subtotalCents * TaxRatePercent / 100
}

// "231.98" 形式の文字列へ
func Format(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
