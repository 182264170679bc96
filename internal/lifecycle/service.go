// Package lifecycle places orders, issues and checks OTP challenges and moves
// orders between statuses.
package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Parthik04-cyber/shopbackend/internal/idempotency"
	"github.com/Parthik04-cyber/shopbackend/internal/metrics"
	"github.com/Parthik04-cyber/shopbackend/internal/notify"
	"github.com/Parthik04-cyber/shopbackend/internal/orders"
	"github.com/Parthik04-cyber/shopbackend/internal/otp"
	"github.com/Parthik04-cyber/shopbackend/internal/validation"
)

// OrderStore is the persistence the service needs; *orders.Store implements it.
type OrderStore interface {
	Create(ctx context.Context, order orders.Order) (orders.Order, error)
	CreateWithIdempotency(ctx context.Context, order orders.Order, idempotencyTable string, rec idempotency.IdempotencyRecord) (orders.Order, error)
	Get(ctx context.Context, orderID string) (*orders.Order, error)
	List(ctx context.Context) ([]orders.Order, error)
	ListByCustomer(ctx context.Context, customerID string) ([]orders.Order, error)
	VerifyOTP(ctx context.Context, orderID, code string, now time.Time, maxAttempts int) (orders.Order, error)
	RecordFailedAttempt(ctx context.Context, orderID string) error
	ReplaceOTP(ctx context.Context, orderID, code string, expiresAt time.Time) error
	SetStatus(ctx context.Context, orderID, status string) error
}

// IdempotencyStore is implemented by *idempotency.Store.
type IdempotencyStore interface {
	TableName() string
	NewRecord(key, orderID, customerID string) idempotency.IdempotencyRecord
	Get(ctx context.Context, key string) (*idempotency.IdempotencyRecord, error)
	MarkDone(ctx context.Context, key, responseBody string, responseStatus int) error
}

// CartTasks runs the post-commit cart clear for direct placements.
type CartTasks interface {
	EnqueueCartClear(ctx context.Context, userID, orderID string) error
}

// ChallengeIssuer is implemented by *otp.Generator.
type ChallengeIssuer interface {
	Issue() (otp.Challenge, error)
}

// Recorder counts lifecycle events.
type Recorder interface {
	Incr(ctx context.Context, name string)
}

// Config tunes the service.
type Config struct {
	// MaxOTPAttempts caps failed verifications per challenge; 0 disables the cap.
	MaxOTPAttempts int
	// CartTaskTimeout bounds the post-commit cart hook.
	CartTaskTimeout time.Duration
}

// Deps groups the collaborators of a Service.
type Deps struct {
	Orders      OrderStore
	Idempotency IdempotencyStore // optional
	Carts       CartTasks
	Notifier    notify.Sender
	OTP         ChallengeIssuer
	Metrics     Recorder // optional
	Logger      *zap.Logger
}

// Placement is the result of a placement call.
type Placement struct {
	OrderID string
	Status  string
	// Replayed is set when an Idempotency-Key matched an earlier placement.
	Replayed bool
}

// Service is the order lifecycle manager.
type Service struct {
	orders   OrderStore
	idem     IdempotencyStore
	carts    CartTasks
	notifier notify.Sender
	otp      ChallengeIssuer
	metrics  Recorder
	logger   *zap.Logger
	validate *validatorv10.Validate
	cfg      Config
	nowFunc  func() time.Time
	newID    func() string
}

// NewService wires a Service.
func NewService(deps Deps, cfg Config) *Service {
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.CartTaskTimeout <= 0 {
		cfg.CartTaskTimeout = 5 * time.Second
	}
	return &Service{
		orders:   deps.Orders,
		idem:     deps.Idempotency,
		carts:    deps.Carts,
		notifier: deps.Notifier,
		otp:      deps.OTP,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		validate: validation.New(),
		cfg:      cfg,
		nowFunc:  time.Now,
		newID:    uuid.NewString,
	}
}

func (s *Service) check(req interface{}) error {
	if err := s.validate.Struct(req); err != nil {
		return &ValidationError{Message: validation.Message(err), Fields: validation.Fields(err)}
	}
	return nil
}

// PlaceDirect records a COD, Stripe or Razorpay order and then asks for the
// customer's cart to be cleared. A non-empty idempotencyKey makes retries of
// the same request return the original order.
func (s *Service) PlaceDirect(ctx context.Context, req validation.DirectOrderRequest, idempotencyKey string) (Placement, error) {
	if err := s.check(req); err != nil {
		return Placement{}, err
	}

	order := orders.Order{
		OrderID:       s.newID(),
		CustomerID:    req.CustomerIdentity,
		CustomerKind:  orders.CustomerUser,
		Items:         req.Items,
		Amount:        req.Amount,
		Address:       toAddress(req.Address),
		PaymentMethod: orders.PaymentMethod(req.PaymentMethod),
		Payment:       false,
		Status:        orders.StatusOrderPlaced,
	}
	log := s.logger.With(zap.String("order_id", order.OrderID), zap.String("customer_id", order.CustomerID),
		zap.String("payment_method", req.PaymentMethod))

	if idempotencyKey != "" && s.idem != nil {
		rec := s.idem.NewRecord(idempotencyKey, order.OrderID, order.CustomerID)
		_, err := s.orders.CreateWithIdempotency(ctx, order, s.idem.TableName(), rec)
		if errors.Is(err, orders.ErrIdempotencyConflict) {
			return s.replay(ctx, idempotencyKey, req.CustomerIdentity)
		}
		if err != nil {
			log.Error("create order failed", zap.Error(err))
			return Placement{}, dependency("create order", err)
		}
		body, _ := json.Marshal(map[string]string{"orderId": order.OrderID, "status": order.Status})
		if err := s.idem.MarkDone(ctx, idempotencyKey, string(body), http.StatusOK); err != nil {
			log.Warn("mark idempotency done failed", zap.Error(err))
		}
	} else if _, err := s.orders.Create(ctx, order); err != nil {
		log.Error("create order failed", zap.Error(err))
		return Placement{}, dependency("create order", err)
	}

	log.Info("order placed")
	s.metrics.Incr(ctx, metrics.OrderPlaced)
	s.afterCommit(ctx, log, order)

	return Placement{OrderID: order.OrderID, Status: order.Status}, nil
}

// afterCommit enqueues the cart clear. It never fails the placement.
func (s *Service) afterCommit(ctx context.Context, log *zap.Logger, order orders.Order) {
	if s.carts == nil {
		return
	}
	hookCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CartTaskTimeout)
	defer cancel()
	if err := s.carts.EnqueueCartClear(hookCtx, order.CustomerID, order.OrderID); err != nil {
		log.Error("cart clear not scheduled", zap.Error(err))
		s.metrics.Incr(ctx, metrics.CartTaskFailed)
	}
}

func (s *Service) replay(ctx context.Context, key, customerID string) (Placement, error) {
	rec, err := s.idem.Get(ctx, key)
	if err != nil {
		return Placement{}, dependency("get idempotency record", err)
	}
	if rec == nil {
		return Placement{}, dependency("get idempotency record", errors.New("record vanished after conflict"))
	}
	if rec.CustomerID != customerID {
		return Placement{}, &ValidationError{Message: "Idempotency-Key already used"}
	}
	if rec.Status != idempotency.StatusDone {
		// The record and the order commit together, so an IN_PROGRESS record
		// whose order exists only lost its MarkDone.
		order, err := s.orders.Get(ctx, rec.OrderID)
		if err != nil {
			return Placement{}, dependency("get order", err)
		}
		if order == nil {
			return Placement{OrderID: rec.OrderID}, ErrRequestInProgress
		}
		body, _ := json.Marshal(map[string]string{"orderId": order.OrderID, "status": order.Status})
		if err := s.idem.MarkDone(ctx, key, string(body), http.StatusOK); err != nil {
			s.logger.Warn("mark idempotency done failed", zap.String("order_id", order.OrderID), zap.Error(err))
		}
	}
	s.logger.Info("placement replayed", zap.String("order_id", rec.OrderID), zap.String("idempotency_key", key))
	return Placement{OrderID: rec.OrderID, Status: orders.StatusOrderPlaced, Replayed: true}, nil
}

// PlaceWithOTP records an email-gated order in pending-otp and mails the code.
// When delivery fails the order stays pending and the error wraps
// ErrDependency; the returned Placement still names the order so the code can
// be resent.
func (s *Service) PlaceWithOTP(ctx context.Context, req validation.OTPOrderRequest) (Placement, error) {
	if err := s.check(req); err != nil {
		return Placement{}, err
	}

	challenge, err := s.otp.Issue()
	if err != nil {
		return Placement{}, dependency("issue otp", err)
	}

	order := orders.Order{
		OrderID:       s.newID(),
		CustomerID:    req.CustomerIdentity,
		CustomerKind:  orders.CustomerEmail,
		Items:         req.Items,
		Amount:        req.Total,
		PaymentMethod: orders.PaymentCOD,
		Status:        orders.StatusPendingOTP,
		OTPCode:       &challenge.Code,
		OTPExpiresAt:  &challenge.ExpiresAt,
		CreatedAt:     challenge.IssuedAt,
	}
	log := s.logger.With(zap.String("order_id", order.OrderID))

	if _, err := s.orders.Create(ctx, order); err != nil {
		log.Error("create otp order failed", zap.Error(err))
		return Placement{}, dependency("create order", err)
	}
	s.metrics.Incr(ctx, metrics.OTPOrderPlaced)

	placement := Placement{OrderID: order.OrderID, Status: order.Status}
	if err := s.sendChallenge(ctx, order.OrderID, order.CustomerID, challenge); err != nil {
		log.Error("otp delivery failed", zap.Error(err))
		return placement, err
	}
	log.Info("otp order placed", zap.Time("otp_expires_at", challenge.ExpiresAt))
	return placement, nil
}

// ResendOTP replaces the outstanding challenge of a pending-otp order and mails
// the new code.
func (s *Service) ResendOTP(ctx context.Context, orderID string) error {
	if orderID == "" {
		return &ValidationError{Message: validation.MsgMissingFields, Fields: map[string]string{"orderId": "required"}}
	}
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return dependency("get order", err)
	}
	if order == nil {
		return ErrNotFound
	}
	if order.Status != orders.StatusPendingOTP {
		return ErrNotPending
	}

	challenge, err := s.otp.Issue()
	if err != nil {
		return dependency("issue otp", err)
	}
	switch err := s.orders.ReplaceOTP(ctx, orderID, challenge.Code, challenge.ExpiresAt); {
	case errors.Is(err, orders.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, orders.ErrStatusMismatch):
		return ErrNotPending
	case err != nil:
		return dependency("replace otp", err)
	}
	if err := s.sendChallenge(ctx, orderID, order.CustomerID, challenge); err != nil {
		s.logger.Error("otp resend failed", zap.String("order_id", orderID), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) sendChallenge(ctx context.Context, orderID, to string, c otp.Challenge) error {
	subject, body := notify.OTPMessage(orderID, c.Code, c.ExpiresAt)
	if err := s.notifier.Send(ctx, to, subject, body); err != nil {
		s.metrics.Incr(ctx, metrics.NotificationFailed)
		return dependency("send otp", err)
	}
	return nil
}

// VerifyOTP confirms an order when code matches its outstanding, unexpired
// challenge. Mismatch and expiry both surface as ErrInvalidOrExpired.
func (s *Service) VerifyOTP(ctx context.Context, orderID, code string) (orders.Order, error) {
	if err := s.check(validation.VerifyOTPRequest{OrderID: orderID, OTP: code}); err != nil {
		return orders.Order{}, err
	}
	log := s.logger.With(zap.String("order_id", orderID))

	confirmed, err := s.orders.VerifyOTP(ctx, orderID, code, s.nowFunc(), s.cfg.MaxOTPAttempts)
	var rej *orders.RejectionError
	switch {
	case err == nil:
		log.Info("order confirmed")
		s.metrics.Incr(ctx, metrics.OTPVerified)
		return confirmed, nil
	case errors.Is(err, orders.ErrNotFound):
		return orders.Order{}, ErrNotFound
	case errors.As(err, &rej):
		log.Info("otp rejected", zap.String("reason", rej.Reason))
		s.metrics.Incr(ctx, metrics.OTPRejected)
		if s.cfg.MaxOTPAttempts > 0 && rej.Reason == orders.RejectMismatch {
			if err := s.orders.RecordFailedAttempt(ctx, orderID); err != nil {
				log.Warn("record failed otp attempt", zap.Error(err))
			}
		}
		return orders.Order{}, ErrInvalidOrExpired
	default:
		log.Error("verify otp failed", zap.Error(err))
		return orders.Order{}, dependency("verify otp", err)
	}
}

// UpdateStatus overwrites an order's status with whatever the operator sent.
// No transition or vocabulary check is applied.
func (s *Service) UpdateStatus(ctx context.Context, orderID, status string) error {
	if err := s.check(validation.StatusUpdateRequest{OrderID: orderID, Status: status}); err != nil {
		return err
	}
	switch err := s.orders.SetStatus(ctx, orderID, status); {
	case errors.Is(err, orders.ErrNotFound):
		return ErrNotFound
	case err != nil:
		return dependency("set status", err)
	}
	s.logger.Info("order status updated", zap.String("order_id", orderID), zap.String("status", status))
	s.metrics.Incr(ctx, metrics.StatusUpdated)
	return nil
}

// ListAll returns every order for operator views.
func (s *Service) ListAll(ctx context.Context) ([]orders.Order, error) {
	list, err := s.orders.List(ctx)
	if err != nil {
		return nil, dependency("list orders", err)
	}
	return list, nil
}

// ListForCustomer returns the orders placed under a customer identity.
func (s *Service) ListForCustomer(ctx context.Context, customerID string) ([]orders.Order, error) {
	if customerID == "" {
		return nil, &ValidationError{Message: validation.MsgMissingFields, Fields: map[string]string{"customerIdentity": "required"}}
	}
	list, err := s.orders.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, dependency("list customer orders", err)
	}
	return list, nil
}

func toAddress(a *validation.Address) *orders.Address {
	if a == nil {
		return nil
	}
	return &orders.Address{
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Email:     a.Email,
		Street:    a.Street,
		City:      a.City,
		State:     a.State,
		Zipcode:   a.Zipcode,
		Country:   a.Country,
		Phone:     a.Phone,
	}
}
