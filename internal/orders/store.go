package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/Parthik04-cyber/shopbackend/internal/aws"
	"github.com/Parthik04-cyber/shopbackend/internal/idempotency"
)

// Store encapsulates operations on the orders table.
type Store struct {
	client        aws.DynamoDBAPI
	tableName     string
	customerIndex string
	nowFunc       func() time.Time
}

// NewStore creates a new orders Store. customerIndex names the GSI hashed on customer_id.
func NewStore(client aws.DynamoDBAPI, tableName, customerIndex string) *Store {
	return &Store{
		client:        client,
		tableName:     tableName,
		customerIndex: customerIndex,
		nowFunc:       time.Now,
	}
}

func (s *Store) stamp(order *Order) {
	now := s.nowFunc().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
}

// Create persists a new order. order.OrderID must be set by the caller.
// Returns ErrAlreadyExists if the id is taken.
func (s *Store) Create(ctx context.Context, order Order) (Order, error) {
	s.stamp(&order)
	item, err := attributevalue.MarshalMap(toRecord(order))
	if err != nil {
		return Order{}, fmt.Errorf("marshal order: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(order_id)"),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ConditionalCheckFailedException" {
			return Order{}, ErrAlreadyExists
		}
		return Order{}, fmt.Errorf("put item: %w", err)
	}
	return order, nil
}

// CreateWithIdempotency atomically creates:
//   - the idempotency record (ConditionExpression attribute_not_exists(idempotency_key))
//   - the order record
//
// Returns ErrIdempotencyConflict when the key already exists; nothing is written in that case.
func (s *Store) CreateWithIdempotency(ctx context.Context, order Order, idempotencyTable string, rec idempotency.IdempotencyRecord) (Order, error) {
	idempMap, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return Order{}, fmt.Errorf("marshal idempotency item: %w", err)
	}

	s.stamp(&order)
	orderMap, err := attributevalue.MarshalMap(toRecord(order))
	if err != nil {
		return Order{}, fmt.Errorf("marshal order item: %w", err)
	}

	input := &dyn.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           &idempotencyTable,
					Item:                idempMap,
					ConditionExpression: awsString("attribute_not_exists(idempotency_key)"),
				},
			},
			{
				Put: &types.Put{
					TableName:           &s.tableName,
					Item:                orderMap,
					ConditionExpression: awsString("attribute_not_exists(order_id)"),
				},
			},
		},
	}

	if _, err := s.client.TransactWriteItems(ctx, input); err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			if len(tce.CancellationReasons) > 0 && tce.CancellationReasons[0].Code != nil &&
				*tce.CancellationReasons[0].Code == "ConditionalCheckFailed" {
				return Order{}, ErrIdempotencyConflict
			}
			return Order{}, fmt.Errorf("transaction canceled: %w", err)
		}
		return Order{}, fmt.Errorf("transact write: %w", err)
	}
	return order, nil
}

// Get fetches an order by order_id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, orderID string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            orderKey(orderID),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	o, err := decode(out.Item)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// List returns every order, oldest first.
func (s *Store) List(ctx context.Context) ([]Order, error) {
	var (
		result []Order
		start  map[string]types.AttributeValue
	)
	for {
		out, err := s.client.Scan(ctx, &dyn.ScanInput{
			TableName:         &s.tableName,
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("scan orders: %w", err)
		}
		page, err := decodeAll(out.Items)
		if err != nil {
			return nil, err
		}
		result = append(result, page...)
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		start = out.LastEvaluatedKey
	}
	sortByCreated(result)
	return result, nil
}

// ListByCustomer returns the orders placed under customerID, oldest first.
func (s *Store) ListByCustomer(ctx context.Context, customerID string) ([]Order, error) {
	var (
		result []Order
		start  map[string]types.AttributeValue
	)
	for {
		out, err := s.client.Query(ctx, &dyn.QueryInput{
			TableName:              &s.tableName,
			IndexName:              &s.customerIndex,
			KeyConditionExpression: awsString("customer_id = :c"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":c": &types.AttributeValueMemberS{Value: customerID},
			},
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("query orders by customer: %w", err)
		}
		page, err := decodeAll(out.Items)
		if err != nil {
			return nil, err
		}
		result = append(result, page...)
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		start = out.LastEvaluatedKey
	}
	sortByCreated(result)
	return result, nil
}

// VerifyOTP confirms the order if code matches its outstanding OTP and now is
// strictly before the expiry. Status, OTP fields and the attempt counter change
// in one conditional write, so of several concurrent callers presenting the
// right code exactly one succeeds.
//
// maxAttempts > 0 additionally requires fewer than maxAttempts recorded failures.
// Returns ErrNotFound or a *RejectionError (errors.Is ErrOTPRejected).
func (s *Store) VerifyOTP(ctx context.Context, orderID, code string, now time.Time, maxAttempts int) (Order, error) {
	cond := "attribute_exists(order_id) AND otp_code = :code AND otp_expires_at > :now"
	values := map[string]types.AttributeValue{
		":code":      &types.AttributeValueMemberS{Value: code},
		":now":       &types.AttributeValueMemberN{Value: strconv.FormatInt(now.UnixMilli(), 10)},
		":confirmed": &types.AttributeValueMemberS{Value: StatusConfirmed},
		":ua":        timeValue(s.nowFunc()),
	}
	if maxAttempts > 0 {
		cond += " AND (attribute_not_exists(otp_attempts) OR otp_attempts < :max)"
		values[":max"] = &types.AttributeValueMemberN{Value: strconv.Itoa(maxAttempts)}
	}

	out, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                           &s.tableName,
		Key:                                 orderKey(orderID),
		ConditionExpression:                 &cond,
		UpdateExpression:                    awsString("SET #s = :confirmed, updated_at = :ua REMOVE otp_code, otp_expires_at, otp_attempts"),
		ExpressionAttributeNames:            map[string]string{"#s": "status"},
		ExpressionAttributeValues:           values,
		ReturnValues:                        types.ReturnValueAllNew,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if !errors.As(err, &ccf) {
			return Order{}, fmt.Errorf("update item (verify otp): %w", err)
		}
		if len(ccf.Item) == 0 {
			return Order{}, ErrNotFound
		}
		old, derr := decode(ccf.Item)
		if derr != nil {
			return Order{}, &RejectionError{Reason: RejectMismatch}
		}
		return Order{}, &RejectionError{Reason: rejectReason(old, code, now, maxAttempts)}
	}
	return decode(out.Attributes)
}

func rejectReason(old Order, code string, now time.Time, maxAttempts int) string {
	switch {
	case !old.HasOutstandingOTP():
		return RejectNoOutstandingOTP
	case maxAttempts > 0 && old.OTPAttempts >= maxAttempts:
		return RejectAttemptsExhausted
	case !now.Before(*old.OTPExpiresAt):
		return RejectExpired
	default:
		return RejectMismatch
	}
}

// ReplaceOTP issues a fresh code for an order still awaiting verification,
// resetting the attempt counter. Returns ErrNotFound or ErrStatusMismatch when
// the order is no longer pending-otp.
func (s *Store) ReplaceOTP(ctx context.Context, orderID, code string, expiresAt time.Time) error {
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                &s.tableName,
		Key:                      orderKey(orderID),
		ConditionExpression:      awsString("attribute_exists(order_id) AND #s = :pending"),
		UpdateExpression:         awsString("SET otp_code = :code, otp_expires_at = :exp, updated_at = :ua REMOVE otp_attempts"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pending": &types.AttributeValueMemberS{Value: StatusPendingOTP},
			":code":    &types.AttributeValueMemberS{Value: code},
			":exp":     &types.AttributeValueMemberN{Value: strconv.FormatInt(expiresAt.UnixMilli(), 10)},
			":ua":      timeValue(s.nowFunc()),
		},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			if len(ccf.Item) == 0 {
				return ErrNotFound
			}
			return ErrStatusMismatch
		}
		return fmt.Errorf("update item (replace otp): %w", err)
	}
	return nil
}

// RecordFailedAttempt increments the failed verification counter while an OTP
// is outstanding. It is a no-op once the OTP has been cleared.
func (s *Store) RecordFailedAttempt(ctx context.Context, orderID string) error {
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 orderKey(orderID),
		ConditionExpression: awsString("attribute_exists(otp_code)"),
		UpdateExpression:    awsString("SET updated_at = :ua ADD otp_attempts :inc"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":inc": &types.AttributeValueMemberN{Value: "1"},
			":ua":  timeValue(s.nowFunc()),
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil
		}
		return fmt.Errorf("increment otp attempts: %w", err)
	}
	return nil
}

// SetStatus overwrites the status of an existing order with any value.
// Returns ErrNotFound rather than creating a record for an unknown id.
func (s *Store) SetStatus(ctx context.Context, orderID, status string) error {
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                &s.tableName,
		Key:                      orderKey(orderID),
		ConditionExpression:      awsString("attribute_exists(order_id)"),
		UpdateExpression:         awsString("SET #s = :new, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":new": &types.AttributeValueMemberS{Value: status},
			":ua":  timeValue(s.nowFunc()),
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrNotFound
		}
		return fmt.Errorf("update item (set status): %w", err)
	}
	return nil
}

func decode(item map[string]types.AttributeValue) (Order, error) {
	var r record
	if err := attributevalue.UnmarshalMap(item, &r); err != nil {
		return Order{}, fmt.Errorf("unmarshal order: %w", err)
	}
	return r.toOrder(), nil
}

func decodeAll(items []map[string]types.AttributeValue) ([]Order, error) {
	out := make([]Order, 0, len(items))
	for _, item := range items {
		o, err := decode(item)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

func sortByCreated(list []Order) {
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
}

func orderKey(orderID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"order_id": &types.AttributeValueMemberS{Value: orderID},
	}
}

// timeValue matches how attributevalue encodes time.Time fields.
func timeValue(t time.Time) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: t.UTC().Format(time.RFC3339Nano)}
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
