package meta

import "encoding/json"

// Keys currently written by the order engine. The bag itself is open-ended;
// payment gateways differ in what correspondence they leave behind, so unknown
// keys are preserved as-is.
const (
	KeyPaymentInfo        = "payment_info"
	KeyPaymentMessage     = "payment_message"
	KeyPaymentReference   = "payment_reference"
	KeyCourierContact     = "courier_contact"
	KeyCourierRefID       = "courier_ref_id"
	KeyCancellationReason = "cancellation_reason"
	KeyCustomerPhone      = "customer_phone"
	KeyTempCartID         = "temp_cart_id"
)

// Bag is the flat key/value metadata attached to an order, stored as a single
// jsonb column.
type Bag map[string]string

// Decode parses the stored metadata column. A nil or empty column decodes to
// an empty bag, never an error.
func Decode(raw []byte) (Bag, error) {
	if len(raw) == 0 {
		return Bag{}, nil
	}
	var b Bag
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, err
	}
	if b == nil {
		b = Bag{}
	}
	return b, nil
}

// Encode serializes the bag for storage. An empty bag encodes to "{}" so the
// column stays valid jsonb.
func (b Bag) Encode() ([]byte, error) {
	if b == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(b)
}

// Merge copies non-empty values from src into b. Keys not mentioned in src
// survive untouched; this is the non-destructive contract every writer relies
// on.
func (b Bag) Merge(src Bag) {
	for k, v := range src {
		if v != "" {
			b[k] = v
		}
	}
}

// Get returns the value for key, or "" when absent.
func (b Bag) Get(key string) string {
	if b == nil {
		return ""
	}
	return b[key]
}

// Has reports whether key is present with a non-empty value.
func (b Bag) Has(key string) bool {
	return b.Get(key) != ""
}
