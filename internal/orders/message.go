package orders

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var moneyPrinter = message.NewPrinter(language.English)

// FormatMoney renders an amount with thousands grouping, e.g. ₦12,500 or
// ₦1,234.50 when the amount has a fractional part.
func FormatMoney(currency string, d decimal.Decimal) string {
	if d.IsInteger() {
		return currency + moneyPrinter.Sprintf("%d", d.IntPart())
	}
	f, _ := d.Round(2).Float64()
	return currency + moneyPrinter.Sprintf("%.2f", f)
}

// ContactMessage renders the plain text message a customer sends to pay for
// an order. Lines are newline separated; URL encoding is left to the client.
func ContactMessage(o Order, currency string) string {
	lines := []string{
		"Hello, I want to pay for my order.",
		"Reference: " + o.Ref,
		"Name: " + o.Customer.FullName,
		"Phone: " + o.Customer.Phone,
		"Total: " + FormatMoney(currency, o.Total),
		"Items:",
	}
	for _, it := range o.Items {
		lines = append(lines, ItemLine(it, currency))
	}
	return strings.Join(lines, "\n")
}

// ItemLine renders one entry of the Items block.
func ItemLine(it LineItem, currency string) string {
	return fmt.Sprintf("%s x%d — ", it.Title, it.Qty) + FormatMoney(currency, it.UnitPrice)
}
