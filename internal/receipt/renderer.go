// Package receipt turns an order snapshot into a printable document and
// encodes documents to ESC/POS. Rendering is a pure function: identical
// inputs produce identical documents, and timestamps always come from the
// snapshot, never from the clock.
package receipt

import (
	"fmt"

	"github.com/shopspring/decimal"

	"odelivery/terminal/internal/domain"
	"odelivery/terminal/internal/money"
)

// RenderError reports a snapshot missing required identity fields. Optional
// fields never produce one.
type RenderError struct {
	OrderID string
	Missing string
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render order %q: missing %s", e.OrderID, e.Missing)
}

// Render builds the self-contained printable document for one order.
func Render(order domain.OrderSnapshot, style domain.StyleConfig, branding *domain.TenantBranding) (*domain.ReceiptDocument, error) {
	if order.ID == "" {
		return nil, &RenderError{OrderID: order.ID, Missing: "order id"}
	}
	if order.OrderNumber == "" {
		return nil, &RenderError{OrderID: order.ID, Missing: "order number"}
	}

	doc := &domain.ReceiptDocument{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		IssuedAt:    order.CreatedAt,
		Delivery:    renderParty(order),
		Items:       renderItems(order.Items),
		Totals:      renderTotals(order),
		Payment:     renderPayment(order),
	}

	if branding != nil {
		doc.Header = domain.ReceiptHeader{
			ShopName:    branding.Name,
			ShopPhone:   branding.Phone,
			ShopAddress: branding.Address,
		}
		if style.ShowLogo {
			doc.Header.LogoURL = branding.LogoURL
		}
		if style.ShowQRCode && branding.MenuURL != "" {
			doc.QR = &domain.ReceiptQR{Label: "Cardápio online", URL: branding.MenuURL}
		}
	}

	if order.Loyalty != nil {
		doc.Loyalty = []string{
			fmt.Sprintf("Pontos ganhos: %d", order.Loyalty.PointsEarned),
			fmt.Sprintf("Total de pontos: %d", order.Loyalty.PointsTotal),
		}
	}

	if style.FooterNote != "" {
		doc.Footer = append(doc.Footer, style.FooterNote)
	}
	doc.Footer = append(doc.Footer, "Pedido #"+order.OrderNumber)

	return doc, nil
}

func renderParty(order domain.OrderSnapshot) domain.ReceiptParty {
	party := domain.ReceiptParty{}
	if order.Customer != nil {
		party.CustomerName = order.Customer.Name
		party.CustomerPhone = order.Customer.Phone
	}
	switch {
	case order.Address != nil:
		party.AddressLines = addressLines(*order.Address)
	case order.Mode == domain.OrderModeTable && order.TableNumber != "":
		party.TableNumber = order.TableNumber
	default:
		party.PickupNotice = "Retirada no balcão (sem entrega)"
	}
	return party
}

func addressLines(a domain.Address) []string {
	lines := make([]string, 0, 4)
	street := a.Street
	if a.Number != "" {
		street += ", " + a.Number
	}
	if street != "" {
		lines = append(lines, street)
	}
	if a.Neighborhood != "" {
		lines = append(lines, a.Neighborhood)
	}
	if a.Complement != "" {
		lines = append(lines, a.Complement)
	}
	if a.Reference != "" {
		lines = append(lines, "Ref: "+a.Reference)
	}
	return lines
}

func renderItems(items []domain.OrderItem) []domain.ReceiptItem {
	out := make([]domain.ReceiptItem, 0, len(items))
	for _, item := range items {
		qty := item.Quantity
		if qty < 1 {
			qty = 1
		}
		rendered := domain.ReceiptItem{
			Name:      item.ProductName,
			Quantity:  qty,
			UnitPrice: money.FormatBRL(item.UnitPrice),
			LineTotal: money.FormatBRL(item.UnitPrice.Mul(decimal.NewFromInt(int64(qty)))),
			Notes:     item.Notes,
		}
		for _, c := range AggregateComplements(item.Complements) {
			sub := domain.ReceiptSubline{Name: c.Name, Quantity: c.Quantity}
			if !c.Price.IsZero() {
				sub.Price = money.FormatBRL(c.Price)
			}
			rendered.Complements = append(rendered.Complements, sub)
		}
		out = append(out, rendered)
	}
	return out
}

// AggregateComplements merges complement lines sharing a name by summing
// their quantities. First-seen order is preserved so the output is
// deterministic for a given input.
func AggregateComplements(lines []domain.ComplementLine) []domain.ComplementLine {
	if len(lines) == 0 {
		return nil
	}
	index := make(map[string]int, len(lines))
	out := make([]domain.ComplementLine, 0, len(lines))
	for _, line := range lines {
		qty := line.Quantity
		if qty < 1 {
			qty = 1
		}
		if at, seen := index[line.Name]; seen {
			out[at].Quantity += qty
			continue
		}
		index[line.Name] = len(out)
		line.Quantity = qty
		out = append(out, line)
	}
	return out
}

func renderTotals(order domain.OrderSnapshot) []domain.ReceiptTotal {
	totals := []domain.ReceiptTotal{
		{Label: "Subtotal", Value: money.FormatBRL(order.Subtotal)},
	}
	if order.DeliveryFee.IsPositive() {
		totals = append(totals, domain.ReceiptTotal{Label: "Entrega", Value: money.FormatBRL(order.DeliveryFee)})
	}
	if order.Surcharge.IsPositive() {
		totals = append(totals, domain.ReceiptTotal{Label: "Acréscimo", Value: money.FormatBRL(order.Surcharge)})
	}
	if order.Discount.IsPositive() {
		totals = append(totals, domain.ReceiptTotal{Label: "Desconto", Value: "-" + money.FormatBRL(order.Discount)})
	}
	totals = append(totals, domain.ReceiptTotal{Label: "Total", Value: money.FormatBRL(order.Total), Emphasis: true})
	return totals
}

func renderPayment(order domain.OrderSnapshot) domain.ReceiptCallout {
	label, extra := PaymentLabel(order)
	callout := domain.ReceiptCallout{Title: "Pagamento", Lines: []string{label}}
	callout.Lines = append(callout.Lines, extra...)
	return callout
}

// PaymentLabel translates the canonical payment method into the printed
// label plus any extra callout lines: a change-due line for cash orders with
// a change_for above the total, and a card-machine reminder for card orders
// not paid online.
func PaymentLabel(order domain.OrderSnapshot) (string, []string) {
	var label string
	switch order.PaymentMethod {
	case domain.PaymentPix:
		label = "Pix"
	case domain.PaymentCreditCard:
		label = "Cartão de Crédito"
	case domain.PaymentDebitCard:
		label = "Cartão de Débito"
	case domain.PaymentCash:
		label = "Dinheiro"
	default:
		label = "Outro"
	}
	if order.PaidOnline {
		label += " (Pago)"
	}

	var extra []string
	if order.PaymentMethod == domain.PaymentCash && order.ChangeFor.GreaterThan(order.Total) {
		extra = append(extra, "Troco para "+money.FormatBRL(order.ChangeFor))
	}
	card := order.PaymentMethod == domain.PaymentCreditCard || order.PaymentMethod == domain.PaymentDebitCard
	if card && !order.PaidOnline {
		extra = append(extra, "Levar maquineta")
	}
	return label, extra
}
