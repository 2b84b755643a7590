package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the backend's business status vocabulary. The terminal
// mirrors it for display only and never drives control flow from it.
type OrderStatus string

const (
	OrderStatusNew            OrderStatus = "new"
	OrderStatusConfirmed      OrderStatus = "confirmed"
	OrderStatusPreparing      OrderStatus = "preparing"
	OrderStatusReady          OrderStatus = "ready"
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

type OrderMode string

const (
	OrderModeDelivery OrderMode = "delivery"
	OrderModePickup   OrderMode = "pickup"
	OrderModeTable    OrderMode = "table"
)

type PaymentMethod string

const (
	PaymentPix        PaymentMethod = "pix"
	PaymentCreditCard PaymentMethod = "credit_card"
	PaymentDebitCard  PaymentMethod = "debit_card"
	PaymentCash       PaymentMethod = "cash"
	PaymentOther      PaymentMethod = "other"
)

// OrderSnapshot is the canonical, fully-typed representation of an order
// after normalization from the external wire format. Monetary totals are
// passed through from the backend as-is; the terminal never recomputes them.
type OrderSnapshot struct {
	ID          string          `json:"id"`
	OrderNumber string          `json:"order_number"`
	Status      OrderStatus     `json:"status"`
	Mode        OrderMode       `json:"mode"`
	Total       decimal.Decimal `json:"total"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	DeliveryFee decimal.Decimal `json:"delivery_fee"`
	Surcharge   decimal.Decimal `json:"surcharge"`
	Discount    decimal.Decimal `json:"discount"`

	PaymentMethod PaymentMethod   `json:"payment_method"`
	PaymentNotes  string          `json:"payment_notes,omitempty"`
	PaidOnline    bool            `json:"paid_online"`
	ChangeFor     decimal.Decimal `json:"change_for"`

	Items    []OrderItem     `json:"items"`
	Customer *Customer       `json:"customer,omitempty"`
	Address  *Address        `json:"address,omitempty"`
	Tenant   *TenantBranding `json:"tenant_data,omitempty"`
	Loyalty  *LoyaltySummary `json:"loyalty,omitempty"`

	TableNumber string    `json:"table_number,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type OrderItem struct {
	ProductName string           `json:"product_name"`
	Quantity    int              `json:"quantity"`
	UnitPrice   decimal.Decimal  `json:"unit_price"`
	Complements []ComplementLine `json:"complements,omitempty"`
	Notes       string           `json:"notes,omitempty"`
}

type ComplementLine struct {
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

type Customer struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

type Address struct {
	Street       string `json:"street"`
	Number       string `json:"number"`
	Neighborhood string `json:"neighborhood"`
	Complement   string `json:"complement,omitempty"`
	Reference    string `json:"reference,omitempty"`
}

// TenantBranding carries the optional shop branding fields the backend
// attaches to each order payload.
type TenantBranding struct {
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
	LogoURL string `json:"logo_url,omitempty"`
	MenuURL string `json:"menu_url,omitempty"`
}

type LoyaltySummary struct {
	PointsEarned int `json:"points_earned"`
	PointsTotal  int `json:"points_total"`
}

// DeviceIdentity is created once per installation and read-only thereafter.
// Ephemeral is set when durable storage was unavailable and the id could not
// be persisted.
type DeviceIdentity struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Ephemeral bool      `json:"-"`
}

// APISettings is owned exclusively by the gateway client and replaced as a
// whole value; partial updates are never visible mid-request.
type APISettings struct {
	BaseURL     string    `json:"base_url"`
	AccessToken string    `json:"access_token"`
	TenantID    string    `json:"tenant_id,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (s APISettings) Valid() bool {
	return s.BaseURL != "" && s.AccessToken != ""
}

// StyleConfig is the UI-level print styling, persisted locally and applied
// at render/encode time.
type StyleConfig struct {
	PaperWidthChars int    `json:"paper_width_chars"`
	Copies          int    `json:"copies"`
	ShowLogo        bool   `json:"show_logo"`
	ShowQRCode      bool   `json:"show_qr_code"`
	FooterNote      string `json:"footer_note,omitempty"`
	AutoPrint       bool   `json:"auto_print"`
}

// DefaultStyleConfig matches a common 58mm thermal printer.
func DefaultStyleConfig() StyleConfig {
	return StyleConfig{
		PaperWidthChars: 32,
		Copies:          1,
		ShowLogo:        true,
		ShowQRCode:      true,
	}
}

type JobStatus string

const (
	JobStatusPending JobStatus = "pending"
	JobStatusPrinted JobStatus = "printed"
)

// PrintJob is the local unit of work for one receipt of one order. Content is
// frozen at materialization time; Status is monotonic and never regresses
// from printed back to pending.
type PrintJob struct {
	OrderID       string           `json:"order_id"`
	OrderNumber   string           `json:"order_number"`
	Status        JobStatus        `json:"status"`
	BackendStatus OrderStatus      `json:"backend_status"`
	Content       *ReceiptDocument `json:"content"`

	CustomerDisplay string          `json:"customer_display"`
	AddressDisplay  string          `json:"address_display"`
	PaymentDisplay  string          `json:"payment_display"`
	Total           decimal.Decimal `json:"total"`
	Copies          int             `json:"copies"`

	CreatedAt    time.Time  `json:"created_at"`
	PrintedAt    *time.Time `json:"printed_at,omitempty"`
	Acknowledged bool       `json:"acknowledged"`
}

// ReceiptDocument is the structured, self-contained printable document
// produced by the renderer. All monetary values are pre-formatted so the
// ESC/POS encoding of an identical document is byte-identical.
type ReceiptDocument struct {
	Header      ReceiptHeader  `json:"header"`
	OrderID     string         `json:"order_id"`
	OrderNumber string         `json:"order_number"`
	IssuedAt    time.Time      `json:"issued_at"`
	Delivery    ReceiptParty   `json:"delivery"`
	Items       []ReceiptItem  `json:"items"`
	Totals      []ReceiptTotal `json:"totals"`
	Payment     ReceiptCallout `json:"payment"`
	Loyalty     []string       `json:"loyalty,omitempty"`
	QR          *ReceiptQR     `json:"qr,omitempty"`
	Footer      []string       `json:"footer,omitempty"`
}

type ReceiptHeader struct {
	ShopName    string `json:"shop_name,omitempty"`
	ShopPhone   string `json:"shop_phone,omitempty"`
	ShopAddress string `json:"shop_address,omitempty"`
	LogoURL     string `json:"logo_url,omitempty"`
}

// ReceiptParty holds the customer/address block. PickupNotice marks an order
// without a delivery address instead of leaving the block empty.
type ReceiptParty struct {
	CustomerName  string   `json:"customer_name,omitempty"`
	CustomerPhone string   `json:"customer_phone,omitempty"`
	AddressLines  []string `json:"address_lines,omitempty"`
	PickupNotice  string   `json:"pickup_notice,omitempty"`
	TableNumber   string   `json:"table_number,omitempty"`
}

type ReceiptItem struct {
	Name        string           `json:"name"`
	Quantity    int              `json:"quantity"`
	UnitPrice   string           `json:"unit_price"`
	LineTotal   string           `json:"line_total"`
	Complements []ReceiptSubline `json:"complements,omitempty"`
	Notes       string           `json:"notes,omitempty"`
}

type ReceiptSubline struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    string `json:"price,omitempty"`
}

type ReceiptTotal struct {
	Label    string `json:"label"`
	Value    string `json:"value"`
	Emphasis bool   `json:"emphasis,omitempty"`
}

// ReceiptCallout is the boxed payment-method section.
type ReceiptCallout struct {
	Title string   `json:"title"`
	Lines []string `json:"lines,omitempty"`
}

type ReceiptQR struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// DebugLogEntry records one remote call outcome, observability only.
type DebugLogEntry struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Method     string    `json:"method"`
	Endpoint   string    `json:"endpoint"`
	Status     int       `json:"status,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
}

type DebugLogStats struct {
	Total         int     `json:"total"`
	Success       int     `json:"success"`
	Failure       int     `json:"failure"`
	SuccessRate   float64 `json:"success_rate"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
}

// PrintRecord is the persisted journal entry for a physically printed order.
// It is what prevents a re-print after restart and what backs manual
// reconciliation when the remote acknowledgment failed.
type PrintRecord struct {
	OrderID      string     `json:"order_id"`
	PrintedAt    time.Time  `json:"printed_at"`
	Acknowledged bool       `json:"acknowledged"`
	AckedAt      *time.Time `json:"acked_at,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

// OperatorAccount is an internal persistence model for local auth credentials.
type OperatorAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type OperatorCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type OperatorView struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type SettingsUpdateRequest struct {
	BaseURL     string `json:"base_url"`
	AccessToken string `json:"access_token"`
	TenantID    string `json:"tenant_id,omitempty"`
}

type StyleUpdateRequest struct {
	PaperWidthChars *int    `json:"paper_width_chars,omitempty"`
	Copies          *int    `json:"copies,omitempty"`
	ShowLogo        *bool   `json:"show_logo,omitempty"`
	ShowQRCode      *bool   `json:"show_qr_code,omitempty"`
	FooterNote      *string `json:"footer_note,omitempty"`
	AutoPrint       *bool   `json:"auto_print,omitempty"`
}

type SyncStatus struct {
	Configured   bool       `json:"configured"`
	Polling      bool       `json:"polling"`
	LastSyncAt   *time.Time `json:"last_sync_at,omitempty"`
	LastSyncErr  string     `json:"last_sync_error,omitempty"`
	PendingJobs  int        `json:"pending_jobs"`
	PrintedJobs  int        `json:"printed_jobs"`
	UnackedJobs  int        `json:"unacked_jobs"`
	DeviceID     string     `json:"device_id"`
	PollInterval string     `json:"poll_interval"`
}
