package orders

import "time"

// Lifecycle statuses written by this service. Admins may store any other
// string (e.g. "Packing", "Shipped", "Out for delivery", "Delivered").
const (
	StatusOrderPlaced = "Order Placed"
	StatusPendingOTP  = "pending-otp"
	StatusConfirmed   = "confirmed"
)

// Customer identity kinds.
const (
	CustomerUser  = "user"
	CustomerEmail = "email"
)

// PaymentMethod tags an order with the channel it was placed under. It is set at
// creation and never changed.
type PaymentMethod string

const (
	PaymentCOD      PaymentMethod = "COD"
	PaymentStripe   PaymentMethod = "Stripe"
	PaymentRazorpay PaymentMethod = "Razorpay"
)

// Valid reports whether m is one of the supported payment methods.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCOD, PaymentStripe, PaymentRazorpay:
		return true
	}
	return false
}

// Address is the shipping address captured with direct placements.
type Address struct {
	FirstName string `json:"firstName" dynamodbav:"first_name"`
	LastName  string `json:"lastName" dynamodbav:"last_name"`
	Email     string `json:"email" dynamodbav:"email"`
	Street    string `json:"street" dynamodbav:"street"`
	City      string `json:"city" dynamodbav:"city"`
	State     string `json:"state" dynamodbav:"state"`
	Zipcode   string `json:"zipcode" dynamodbav:"zipcode"`
	Country   string `json:"country" dynamodbav:"country"`
	Phone     string `json:"phone" dynamodbav:"phone"`
}

// Order is the domain view of an item in the orders table.
// OTPCode and OTPExpiresAt are either both set or both nil.
type Order struct {
	OrderID       string                   `json:"orderId"`
	CustomerID    string                   `json:"customerIdentity"`
	CustomerKind  string                   `json:"customerKind"`
	Items         []map[string]interface{} `json:"items"`
	Amount        float64                  `json:"amount"`
	Address       *Address                 `json:"address,omitempty"`
	PaymentMethod PaymentMethod            `json:"paymentMethod"`
	Payment       bool                     `json:"payment"`
	Status        string                   `json:"status"`
	OTPCode       *string                  `json:"-"`
	OTPExpiresAt  *time.Time               `json:"-"`
	OTPAttempts   int                      `json:"-"`
	CreatedAt     time.Time                `json:"createdAt"`
	UpdatedAt     time.Time                `json:"updatedAt"`
}

// HasOutstandingOTP reports whether a verification is still pending.
func (o Order) HasOutstandingOTP() bool {
	return o.OTPCode != nil && o.OTPExpiresAt != nil
}

// record is the shape persisted in DynamoDB. OTP expiry is stored as epoch
// milliseconds so conditional updates can compare it numerically.
type record struct {
	OrderID       string                   `dynamodbav:"order_id"` // PK
	CustomerID    string                   `dynamodbav:"customer_id"`
	CustomerKind  string                   `dynamodbav:"customer_kind"`
	Items         []map[string]interface{} `dynamodbav:"items"`
	Amount        float64                  `dynamodbav:"amount"`
	Address       *Address                 `dynamodbav:"address,omitempty"`
	PaymentMethod string                   `dynamodbav:"payment_method"`
	Payment       bool                     `dynamodbav:"payment"`
	Status        string                   `dynamodbav:"status"`
	OTPCode       *string                  `dynamodbav:"otp_code,omitempty"`
	OTPExpiresAt  *int64                   `dynamodbav:"otp_expires_at,omitempty"`
	OTPAttempts   int                      `dynamodbav:"otp_attempts,omitempty"`
	CreatedAt     time.Time                `dynamodbav:"created_at"`
	UpdatedAt     time.Time                `dynamodbav:"updated_at"`
}

func toRecord(o Order) record {
	r := record{
		OrderID:       o.OrderID,
		CustomerID:    o.CustomerID,
		CustomerKind:  o.CustomerKind,
		Items:         o.Items,
		Amount:        o.Amount,
		Address:       o.Address,
		PaymentMethod: string(o.PaymentMethod),
		Payment:       o.Payment,
		Status:        o.Status,
		OTPAttempts:   o.OTPAttempts,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
	if o.HasOutstandingOTP() {
		code := *o.OTPCode
		ms := o.OTPExpiresAt.UnixMilli()
		r.OTPCode = &code
		r.OTPExpiresAt = &ms
	}
	return r
}

func (r record) toOrder() Order {
	o := Order{
		OrderID:       r.OrderID,
		CustomerID:    r.CustomerID,
		CustomerKind:  r.CustomerKind,
		Items:         r.Items,
		Amount:        r.Amount,
		Address:       r.Address,
		PaymentMethod: PaymentMethod(r.PaymentMethod),
		Payment:       r.Payment,
		Status:        r.Status,
		OTPAttempts:   r.OTPAttempts,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.OTPCode != nil && r.OTPExpiresAt != nil {
		code := *r.OTPCode
		exp := time.UnixMilli(*r.OTPExpiresAt).UTC()
		o.OTPCode = &code
		o.OTPExpiresAt = &exp
	}
	return o
}
