package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/gule/marketplace/internal/domain"
)

// Message categories.
const (
	CategoryOrderConfirmation = "order_confirmation"
	CategoryOrderStatus       = "order_status"
)

var orderHTML = template.Must(template.New("order").Parse(`<h2>{{.Title}}</h2>
<p>Order <strong>{{.Order.ID}}</strong> is now <strong>{{.Order.Status}}</strong>.</p>
<table>
{{range .Order.Items}}<tr><td>{{.ProductName}}</td><td>x{{.Quantity}}</td></tr>
{{end}}</table>
<p>Total: {{.Total}}</p>
{{with .Order.Tracking}}{{if .TrackingNumber}}<p>Tracking: {{.Carrier}} {{.TrackingNumber}}</p>{{end}}{{end}}`))

// FormatAmount renders minor units as a decimal amount.
func FormatAmount(minor int64, currency string) string {
	sign := ""
	if minor < 0 {
		sign, minor = "-", -minor
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, minor/100, minor%100, currency)
}

// OrderConfirmation builds the email sent after checkout.
func OrderConfirmation(to string, o *domain.Order) Message {
	title := "Thank you for your order"
	return Message{
		To:       to,
		Subject:  fmt.Sprintf("Order %s confirmed", o.ID),
		Text:     orderText(title, o),
		HTML:     orderHTMLBody(title, o),
		Category: CategoryOrderConfirmation,
	}
}

// OrderStatusChanged builds the email sent when an order moves.
func OrderStatusChanged(to string, o *domain.Order) Message {
	title := fmt.Sprintf("Your order is %s", o.Status)
	return Message{
		To:       to,
		Subject:  fmt.Sprintf("Order %s: %s", o.ID, o.Status),
		Text:     orderText(title, o),
		HTML:     orderHTMLBody(title, o),
		Category: CategoryOrderStatus,
	}
}

func orderText(title string, o *domain.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\nOrder %s is now %s.\n\n", title, o.ID, o.Status)
	for _, it := range o.Items {
		fmt.Fprintf(&b, "  %s x%d  %s\n", it.ProductName, it.Quantity, FormatAmount(it.LineTotal(), o.Currency))
	}
	fmt.Fprintf(&b, "\nTotal: %s\n", FormatAmount(o.TotalAmount, o.Currency))
	if o.Reason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", o.Reason)
	}
	if o.Tracking.TrackingNumber != "" {
		fmt.Fprintf(&b, "Tracking: %s %s\n", o.Tracking.Carrier, o.Tracking.TrackingNumber)
	}
	return b.String()
}

func orderHTMLBody(title string, o *domain.Order) string {
	var buf bytes.Buffer
	err := orderHTML.Execute(&buf, struct {
		Title string
		Order *domain.Order
		Total string
	}{title, o, FormatAmount(o.TotalAmount, o.Currency)})
	if err != nil {
		return ""
	}
	return buf.String()
}
