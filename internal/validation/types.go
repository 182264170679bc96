package validation

// Address is the shipping address of a direct placement. Every field is required.
type Address struct {
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	Street    string `json:"street" validate:"required"`
	City      string `json:"city" validate:"required"`
	State     string `json:"state" validate:"required"`
	Zipcode   string `json:"zipcode" validate:"required"`
	Country   string `json:"country" validate:"required"`
	Phone     string `json:"phone" validate:"required"`
}

// DirectOrderRequest is the payload for COD, Stripe and Razorpay placement.
// CustomerIdentity is filled from the verified user token.
type DirectOrderRequest struct {
	CustomerIdentity string                   `json:"customerIdentity" validate:"required"`
	Items            []map[string]interface{} `json:"items" validate:"required,min=1,dive,required,min=1"` // opaque line items
	Amount           float64                  `json:"amount" validate:"required,gt=0"`
	Address          *Address                 `json:"address" validate:"required"`
	PaymentMethod    string                   `json:"paymentMethod" validate:"required,oneof=COD Stripe Razorpay"`
}

// OTPOrderRequest is the payload for email-gated placement.
type OTPOrderRequest struct {
	CustomerIdentity string                   `json:"customerIdentity" validate:"required,email"`
	Items            []map[string]interface{} `json:"items" validate:"required,min=1,dive,required,min=1"`
	Total            float64                  `json:"total" validate:"required,gt=0"`
}

// VerifyOTPRequest is the payload for POST /verify-otp. The code format is
// not checked here so malformed codes fail like any other mismatch.
type VerifyOTPRequest struct {
	OrderID string `json:"orderId" validate:"required"`
	OTP     string `json:"otp" validate:"required"`
}

// StatusUpdateRequest is the payload for the admin status overwrite.
type StatusUpdateRequest struct {
	OrderID string `json:"orderId" validate:"required"`
	Status  string `json:"status" validate:"required"`
}
