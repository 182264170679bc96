// Package carts clears shopping carts once an order has been committed.
package carts

import (
	"context"
	"errors"
	"fmt"
	"time"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/Parthik04-cyber/shopbackend/internal/aws"
)

// ErrUserNotFound is returned when clearing the cart of an unknown user.
var ErrUserNotFound = errors.New("user not found")

// Store updates the cart_data attribute on the users table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a cart Store over the users table.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{client: client, tableName: tableName, nowFunc: time.Now}
}

// Clear empties the user's cart. Clearing an already empty cart succeeds, so
// redelivered tasks are harmless.
func (s *Store) Clear(ctx context.Context, userID string) error {
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: userID},
		},
		ConditionExpression: awsString("attribute_exists(user_id)"),
		UpdateExpression:    awsString("SET cart_data = :empty, cart_cleared_at = :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":empty": &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{}},
			":now":   &types.AttributeValueMemberS{Value: s.nowFunc().UTC().Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrUserNotFound
		}
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

func awsString(s string) *string { return &s }
