// Package notify renders and delivers order notifications.
package notify

import (
	"bytes"
	"text/template"

	"github.com/go-faster/errors"

	"github.com/xenking/foodcart/internal/domain/order"
)

// Message is a rendered notification.
type Message struct {
	To      string
	Subject string
	Body    string
}

var (
	createdSubject = template.Must(template.New("created_subject").Parse(
		`Order {{ .Order.ID }} placed`))
	createdBody = template.Must(template.New("created_body").Parse(
		`Hi {{ .Name }},

Thanks for your order! We have received order {{ .Order.ID }}.
{{ range .Order.Items }}
  {{ .Quantity }} x {{ .Name }} @ {{ .DiscountPrice.StringFixed 2 }}
{{- end }}

Subtotal: {{ .Order.Subtotal.StringFixed 2 }}
{{- if .Order.CouponCode }}
Coupon {{ .Order.CouponCode }}: -{{ .Order.Discount.StringFixed 2 }}
{{- end }}
Total: {{ .Order.TotalAmount.StringFixed 2 }}

Status: {{ .Order.DeliveryStatus }}
`))

	statusSubject = template.Must(template.New("status_subject").Parse(
		`Order {{ .Order.ID }} is {{ .Status }}`))
	statusBody = template.Must(template.New("status_body").Parse(
		`Hi {{ .Name }},

Your order {{ .Order.ID }} is now {{ .Status }}.
`))
)

type templateData struct {
	Name   string
	Order  *order.Order
	Status order.Status
}

func render(subject, body *template.Template, to order.Recipient, data templateData) (Message, error) {
	if data.Name == "" {
		data.Name = "there"
	}
	var s, b bytes.Buffer
	if err := subject.Execute(&s, data); err != nil {
		return Message{}, errors.Wrapf(err, "render %s", subject.Name())
	}
	if err := body.Execute(&b, data); err != nil {
		return Message{}, errors.Wrapf(err, "render %s", body.Name())
	}
	return Message{To: to.Email, Subject: s.String(), Body: b.String()}, nil
}

// OrderCreated renders the order confirmation.
func OrderCreated(o *order.Order, to order.Recipient) (Message, error) {
	return render(createdSubject, createdBody, to, templateData{Name: to.Name, Order: o})
}

// StatusChanged renders the delivery status update.
func StatusChanged(o *order.Order, to order.Recipient, status order.Status) (Message, error) {
	return render(statusSubject, statusBody, to, templateData{Name: to.Name, Order: o, Status: status})
}
