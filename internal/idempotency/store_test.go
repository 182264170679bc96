package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Parthik04-cyber/shopbackend/internal/dynamotest"
)

const table = "idempotency"

func newTestStore(t *testing.T) (*Store, *dynamotest.Fake) {
	t.Helper()
	fake := dynamotest.New()
	fake.CreateTable(table, "idempotency_key")
	s := NewStore(fake, table, 48*time.Hour)
	s.nowFunc = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return s, fake
}

func TestNewRecord_SetsTTL(t *testing.T) {
	s, _ := newTestStore(t)

	rec := s.NewRecord("k1", "o1", "u1")
	assert.Equal(t, StatusInProgress, rec.Status)
	assert.Equal(t, "o1", rec.OrderID)
	assert.Equal(t, "u1", rec.CustomerID)
	assert.Equal(t, s.nowFunc().Add(48*time.Hour).Unix(), rec.ExpiresAt)
}

func TestGet_MarkDone(t *testing.T) {
	s, fake := newTestStore(t)
	ctx := context.Background()

	got, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	item, err := attributevalue.MarshalMap(s.NewRecord("k1", "o1", "u1"))
	require.NoError(t, err)
	fake.Seed(table, item)

	require.NoError(t, s.MarkDone(ctx, "k1", `{"orderId":"o1"}`, 200))

	rec, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, StatusDone, rec.Status)
	assert.Equal(t, `{"orderId":"o1"}`, rec.ResponseBody)
	assert.Equal(t, 200, rec.ResponseStatus)
}

func TestMarkDone_UnknownKeyFails(t *testing.T) {
	s, fake := newTestStore(t)

	err := s.MarkDone(context.Background(), "ghost", "{}", 200)
	var ccf *types.ConditionalCheckFailedException
	require.True(t, errors.As(err, &ccf))
	assert.Equal(t, 0, fake.Len(table))
}
