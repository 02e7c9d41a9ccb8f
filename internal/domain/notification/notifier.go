// Package notification defines outgoing customer notifications.
package notification

import (
	"bytes"
	"context"
	"fmt"
	"text/template"
)

// Message is a rendered plain-text mail.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Notifier delivers messages. Implementations live in infrastructure/mail.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// OrderConfirmation holds the values rendered into a confirmation mail.
type OrderConfirmation struct {
	OrderID       string
	CustomerName  string
	CustomerEmail string
	StoreName     string
}

var confirmationTmpl = template.Must(template.New("confirmation").Parse(
	`Dear {{.CustomerName}},

Thank you for your order. Your order with order number {{.OrderID}} has been received and is being processed.

Sincerely,
{{.StoreName}}
`))

// RenderOrderConfirmation builds the confirmation mail for an order.
func RenderOrderConfirmation(c OrderConfirmation) (Message, error) {
	if c.StoreName == "" {
		c.StoreName = "Your Online Store"
	}
	var body bytes.Buffer
	if err := confirmationTmpl.Execute(&body, c); err != nil {
		return Message{}, fmt.Errorf("render order confirmation: %w", err)
	}
	return Message{
		To:      c.CustomerEmail,
		Subject: "Order Confirmation",
		Body:    body.String(),
	}, nil
}
