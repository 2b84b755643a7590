// Package transform is the single seam converting external order payloads
// into canonical snapshots. Everything downstream of it works with
// fully-typed values.
package transform

import (
	"strconv"
	"strings"
	"time"

	"odelivery/terminal/internal/domain"
	"odelivery/terminal/internal/money"
)

// WireOrder mirrors the order payload as the backend sends it: monetary
// fields may be localized strings or plain numbers, identifiers may be
// numbers, and every nested block is optional.
type WireOrder struct {
	ID             any             `json:"id"`
	OrderNumber    any             `json:"order_number"`
	Status         string          `json:"status"`
	DeliveryType   string          `json:"delivery_type"`
	Total          any             `json:"total"`
	Subtotal       any             `json:"subtotal"`
	DeliveryFee    any             `json:"delivery_fee"`
	Surcharge      any             `json:"surcharge"`
	Discount       any             `json:"discount"`
	PaymentMethod  string          `json:"payment_method"`
	PaymentSummary string          `json:"payment_summary"`
	PaidOnline     bool            `json:"paid_online"`
	ChangeFor      any             `json:"change_for"`
	Items          []WireItem      `json:"items"`
	Customer       *WireCustomer   `json:"customer"`
	Address        *WireAddress    `json:"address"`
	TenantData     *WireTenantData `json:"tenant_data"`
	Loyalty        *WireLoyalty    `json:"loyalty"`
	TableNumber    any             `json:"table_number"`
	CreatedAt      string          `json:"created_at"`
}

type WireItem struct {
	ProductName string           `json:"product_name"`
	Quantity    any              `json:"quantity"`
	UnitPrice   any              `json:"unit_price"`
	Complements []WireComplement `json:"complements"`
	Notes       string           `json:"notes"`
}

type WireComplement struct {
	Name     string `json:"name"`
	Price    any    `json:"price"`
	Quantity any    `json:"quantity"`
}

type WireCustomer struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type WireAddress struct {
	Street       string `json:"street"`
	Number       any    `json:"number"`
	Neighborhood string `json:"neighborhood"`
	Complement   string `json:"complement"`
	Reference    string `json:"reference"`
}

type WireTenantData struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	LogoURL string `json:"logo_url"`
	MenuURL string `json:"menu_url"`
}

type WireLoyalty struct {
	PointsEarned any `json:"points_earned"`
	PointsTotal  any `json:"points_total"`
}

// Order maps one wire payload to one canonical snapshot. The mapping is pure
// and idempotent; absent optionals stay absent and totals pass through
// untouched. Tenant ownership is not resolved here.
func Order(w WireOrder) domain.OrderSnapshot {
	snap := domain.OrderSnapshot{
		ID:            stringify(w.ID),
		OrderNumber:   stringify(w.OrderNumber),
		Status:        domain.OrderStatus(strings.ToLower(strings.TrimSpace(w.Status))),
		Mode:          mode(w),
		Total:         money.ParseLocalizedCurrency(w.Total),
		Subtotal:      money.ParseLocalizedCurrency(w.Subtotal),
		DeliveryFee:   money.ParseLocalizedCurrency(w.DeliveryFee),
		Surcharge:     money.ParseLocalizedCurrency(w.Surcharge),
		Discount:      money.ParseLocalizedCurrency(w.Discount),
		PaymentMethod: paymentMethod(w),
		PaymentNotes:  strings.TrimSpace(w.PaymentSummary),
		PaidOnline:    w.PaidOnline,
		ChangeFor:     money.ParseLocalizedCurrency(w.ChangeFor),
		TableNumber:   stringify(w.TableNumber),
		CreatedAt:     parseTime(w.CreatedAt),
	}

	if len(w.Items) > 0 {
		snap.Items = make([]domain.OrderItem, 0, len(w.Items))
		for _, item := range w.Items {
			snap.Items = append(snap.Items, orderItem(item))
		}
	}

	if w.Customer != nil {
		snap.Customer = &domain.Customer{
			Name:  strings.TrimSpace(w.Customer.Name),
			Phone: strings.TrimSpace(w.Customer.Phone),
		}
	}
	if w.Address != nil {
		snap.Address = &domain.Address{
			Street:       strings.TrimSpace(w.Address.Street),
			Number:       stringify(w.Address.Number),
			Neighborhood: strings.TrimSpace(w.Address.Neighborhood),
			Complement:   strings.TrimSpace(w.Address.Complement),
			Reference:    strings.TrimSpace(w.Address.Reference),
		}
	}
	if w.TenantData != nil {
		snap.Tenant = &domain.TenantBranding{
			Name:    strings.TrimSpace(w.TenantData.Name),
			Phone:   strings.TrimSpace(w.TenantData.Phone),
			Address: strings.TrimSpace(w.TenantData.Address),
			LogoURL: strings.TrimSpace(w.TenantData.LogoURL),
			MenuURL: strings.TrimSpace(w.TenantData.MenuURL),
		}
	}
	if w.Loyalty != nil {
		snap.Loyalty = &domain.LoyaltySummary{
			PointsEarned: intify(w.Loyalty.PointsEarned, 0),
			PointsTotal:  intify(w.Loyalty.PointsTotal, 0),
		}
	}

	return snap
}

func orderItem(w WireItem) domain.OrderItem {
	item := domain.OrderItem{
		ProductName: strings.TrimSpace(w.ProductName),
		Quantity:    intify(w.Quantity, 1),
		UnitPrice:   money.ParseLocalizedCurrency(w.UnitPrice),
		Notes:       strings.TrimSpace(w.Notes),
	}
	if item.Quantity < 1 {
		item.Quantity = 1
	}
	if len(w.Complements) > 0 {
		item.Complements = make([]domain.ComplementLine, 0, len(w.Complements))
		for _, c := range w.Complements {
			qty := intify(c.Quantity, 1)
			if qty < 1 {
				qty = 1
			}
			item.Complements = append(item.Complements, domain.ComplementLine{
				Name:     strings.TrimSpace(c.Name),
				Price:    money.ParseLocalizedCurrency(c.Price),
				Quantity: qty,
			})
		}
	}
	return item
}

func mode(w WireOrder) domain.OrderMode {
	switch strings.ToLower(strings.TrimSpace(w.DeliveryType)) {
	case "delivery":
		return domain.OrderModeDelivery
	case "pickup", "retirada", "takeout":
		return domain.OrderModePickup
	case "table", "mesa", "dine_in":
		return domain.OrderModeTable
	}
	// Missing mode: an address implies delivery, otherwise pickup.
	if w.Address != nil {
		return domain.OrderModeDelivery
	}
	return domain.OrderModePickup
}

func paymentMethod(w WireOrder) domain.PaymentMethod {
	switch domain.PaymentMethod(strings.ToLower(strings.TrimSpace(w.PaymentMethod))) {
	case domain.PaymentPix:
		return domain.PaymentPix
	case domain.PaymentCreditCard:
		return domain.PaymentCreditCard
	case domain.PaymentDebitCard:
		return domain.PaymentDebitCard
	case domain.PaymentCash:
		return domain.PaymentCash
	}
	if w.PaymentMethod != "" {
		if inferred := money.InferPaymentMethod(w.PaymentMethod); inferred != domain.PaymentOther {
			return inferred
		}
	}
	return money.InferPaymentMethod(w.PaymentSummary)
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return ""
	}
}

func intify(v any, fallback int) int {
	switch val := v.(type) {
	case float64:
		return int(val)
	case int:
		return val
	case int64:
		return int(val)
	case string:
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func parseTime(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.UTC()
		}
	}
	return time.Time{}
}
