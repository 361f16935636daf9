package enum

// ── Stored order states (CHECK constrained in DB) ──

const (
	OrderStatusPending   = "pending"
	OrderStatusConfirmed = "confirmed"
	// processing is written verbatim when an operator moves an order to the
	// presented `processing` state; it has no richer mapping of its own.
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
)

// ── Presented order states (API vocabulary, superset of stored) ──
// `shipped` is never shown to callers; it presents as `in_transit`.

const (
	PresentedPending           = "pending"
	PresentedConfirmed         = "confirmed"
	PresentedWaitingForPayment = "waiting_for_payment"
	PresentedProcessing        = "processing"
	PresentedInTransit         = "in_transit"
	PresentedDelivered         = "delivered"
	PresentedCancelled         = "cancelled"
)

const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
)

// ── Roles (CHECK constrained in DB) ──

const (
	UserRoleAdmin    = "ADMIN"
	UserRoleFarmer   = "FARMER"
	UserRoleCustomer = "CUSTOMER"
)

// ── Configurable labels (no DB constraint) ──

const (
	PaymentMethodCashOnDelivery = "cash_on_delivery"
	PaymentMethodBkash          = "bkash"
	PaymentMethodNagad          = "nagad"
	PaymentMethodBankTransfer   = "bank_transfer"
)

// IsTerminalOrderStatus reports whether a stored status admits no further
// transitions.
func IsTerminalOrderStatus(s string) bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}
