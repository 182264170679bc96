package dynamotest

import (
	"context"
	"errors"
	"testing"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func s(v string) *string { return &v }

func seeded(t *testing.T) *Fake {
	t.Helper()
	f := New()
	f.CreateTable("orders", "order_id")
	f.CreateIndex("orders", "by_customer", "customer_id")
	f.Seed("orders", map[string]types.AttributeValue{
		"order_id":    &types.AttributeValueMemberS{Value: "o1"},
		"customer_id": &types.AttributeValueMemberS{Value: "c1"},
		"status":      &types.AttributeValueMemberS{Value: "pending-otp"},
		"otp_code":    &types.AttributeValueMemberS{Value: "012345"},
		"expires":     &types.AttributeValueMemberN{Value: "1000"},
	})
	return f
}

func TestUpdateItem_ConditionAndClauses(t *testing.T) {
	f := seeded(t)
	ctx := context.Background()
	in := &dyn.UpdateItemInput{
		TableName:           s("orders"),
		Key:                 map[string]types.AttributeValue{"order_id": &types.AttributeValueMemberS{Value: "o1"}},
		ConditionExpression: s("attribute_exists(order_id) AND otp_code = :code AND expires > :now AND (attribute_not_exists(tries) OR tries < :max)"),
		UpdateExpression:    s("SET #s = :st REMOVE otp_code, expires ADD hits :one"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":code": &types.AttributeValueMemberS{Value: "012345"},
			":now":  &types.AttributeValueMemberN{Value: "999"},
			":max":  &types.AttributeValueMemberN{Value: "3"},
			":st":   &types.AttributeValueMemberS{Value: "confirmed"},
			":one":  &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	}

	_, err := f.UpdateItem(ctx, in)
	require.NoError(t, err)

	item := f.Item("orders", "o1")
	assert.Equal(t, "confirmed", item["status"].(*types.AttributeValueMemberS).Value)
	assert.NotContains(t, item, "otp_code")
	assert.NotContains(t, item, "expires")
	assert.Equal(t, "1", item["hits"].(*types.AttributeValueMemberN).Value)

	_, err = f.UpdateItem(ctx, in)
	var ccf *types.ConditionalCheckFailedException
	require.True(t, errors.As(err, &ccf))
	assert.NotEmpty(t, ccf.Item)
}

func TestUpdateItem_MissingItemReturnsNoOldImage(t *testing.T) {
	f := seeded(t)
	_, err := f.UpdateItem(context.Background(), &dyn.UpdateItemInput{
		TableName:                           s("orders"),
		Key:                                 map[string]types.AttributeValue{"order_id": &types.AttributeValueMemberS{Value: "nope"}},
		ConditionExpression:                 s("attribute_exists(order_id)"),
		UpdateExpression:                    s("SET #s = :st"),
		ExpressionAttributeNames:            map[string]string{"#s": "status"},
		ExpressionAttributeValues:           map[string]types.AttributeValue{":st": &types.AttributeValueMemberS{Value: "x"}},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	var ccf *types.ConditionalCheckFailedException
	require.True(t, errors.As(err, &ccf))
	assert.Empty(t, ccf.Item)
	assert.Equal(t, 1, f.Len("orders"))
}

func TestQueryAndScanPagination(t *testing.T) {
	f := seeded(t)
	f.Seed("orders", map[string]types.AttributeValue{
		"order_id":    &types.AttributeValueMemberS{Value: "o2"},
		"customer_id": &types.AttributeValueMemberS{Value: "c1"},
	})
	f.Seed("orders", map[string]types.AttributeValue{
		"order_id":    &types.AttributeValueMemberS{Value: "o3"},
		"customer_id": &types.AttributeValueMemberS{Value: "c2"},
	})
	ctx := context.Background()

	q, err := f.Query(ctx, &dyn.QueryInput{
		TableName:                 s("orders"),
		IndexName:                 s("by_customer"),
		KeyConditionExpression:    s("customer_id = :c"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":c": &types.AttributeValueMemberS{Value: "c1"}},
	})
	require.NoError(t, err)
	assert.Len(t, q.Items, 2)

	limit := int32(2)
	first, err := f.Scan(ctx, &dyn.ScanInput{TableName: s("orders"), Limit: &limit})
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	require.NotNil(t, first.LastEvaluatedKey)

	second, err := f.Scan(ctx, &dyn.ScanInput{TableName: s("orders"), Limit: &limit, ExclusiveStartKey: first.LastEvaluatedKey})
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	assert.Nil(t, second.LastEvaluatedKey)
	assert.Equal(t, 2, f.Calls("Scan"))
}

func TestTransactWriteItems_AllOrNothing(t *testing.T) {
	f := seeded(t)
	f.CreateTable("idem", "idempotency_key")
	f.Seed("idem", map[string]types.AttributeValue{"idempotency_key": &types.AttributeValueMemberS{Value: "k1"}})

	_, err := f.TransactWriteItems(context.Background(), &dyn.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:           s("idem"),
				Item:                map[string]types.AttributeValue{"idempotency_key": &types.AttributeValueMemberS{Value: "k1"}},
				ConditionExpression: s("attribute_not_exists(idempotency_key)"),
			}},
			{Put: &types.Put{
				TableName: s("orders"),
				Item:      map[string]types.AttributeValue{"order_id": &types.AttributeValueMemberS{Value: "o9"}},
			}},
		},
	})
	var tce *types.TransactionCanceledException
	require.True(t, errors.As(err, &tce))
	require.Len(t, tce.CancellationReasons, 2)
	assert.Equal(t, "ConditionalCheckFailed", *tce.CancellationReasons[0].Code)
	assert.Nil(t, f.Item("orders", "o9"))
}

func TestSetError(t *testing.T) {
	f := seeded(t)
	boom := errors.New("boom")
	f.SetError("GetItem", boom)
	_, err := f.GetItem(context.Background(), &dyn.GetItemInput{
		TableName: s("orders"),
		Key:       map[string]types.AttributeValue{"order_id": &types.AttributeValueMemberS{Value: "o1"}},
	})
	assert.ErrorIs(t, err, boom)

	f.SetError("GetItem", nil)
	out, err := f.GetItem(context.Background(), &dyn.GetItemInput{
		TableName: s("orders"),
		Key:       map[string]types.AttributeValue{"order_id": &types.AttributeValueMemberS{Value: "o1"}},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, out.Item)
}
