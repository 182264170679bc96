// Package dynamotest provides an in-memory DynamoDB double for unit tests.
//
// The fake understands the subset of expression syntax the stores in this
// module emit: AND/OR conditions over attribute_exists, attribute_not_exists
// and binary comparisons; SET, REMOVE and ADD update clauses; single-attribute
// key conditions on the table key or a global secondary index.
package dynamotest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type table struct {
	pk      string
	items   map[string]map[string]types.AttributeValue
	indexes map[string]string
}

// Fake implements the DynamoDB operations used by the stores.
type Fake struct {
	mu     sync.Mutex
	tables map[string]*table
	calls  map[string]int
	errs   map[string]error
}

// New returns an empty fake with no tables.
func New() *Fake {
	return &Fake{
		tables: map[string]*table{},
		calls:  map[string]int{},
		errs:   map[string]error{},
	}
}

// CreateTable registers a table keyed by the string attribute pk.
func (f *Fake) CreateTable(name, pk string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[name] = &table{
		pk:      pk,
		items:   map[string]map[string]types.AttributeValue{},
		indexes: map[string]string{},
	}
}

// CreateIndex registers a global secondary index hashed on attr.
func (f *Fake) CreateIndex(tableName, index, attr string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mustTable(tableName).indexes[index] = attr
}

// SetError makes every call to op fail with err until reset with a nil err.
func (f *Fake) SetError(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errs, op)
		return
	}
	f.errs[op] = err
}

// Calls reports how many times op was invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// Seed stores item directly, bypassing conditions.
func (f *Fake) Seed(tableName string, item map[string]types.AttributeValue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.mustTable(tableName)
	k, err := keyOf(t, item)
	if err != nil {
		panic(err)
	}
	t.items[k] = clone(item)
}

// Item returns a copy of the stored item, or nil.
func (f *Fake) Item(tableName, key string) map[string]types.AttributeValue {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.mustTable(tableName).items[key]
	if !ok {
		return nil
	}
	return clone(item)
}

// Len reports the number of items in a table.
func (f *Fake) Len(tableName string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.mustTable(tableName).items)
}

func (f *Fake) begin(op string) error {
	f.calls[op]++
	return f.errs[op]
}

func (f *Fake) mustTable(name string) *table {
	t, ok := f.tables[name]
	if !ok {
		panic(fmt.Sprintf("dynamotest: unknown table %q", name))
	}
	return t
}

func (f *Fake) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("PutItem"); err != nil {
		return nil, err
	}
	t := f.mustTable(deref(params.TableName))
	k, err := keyOf(t, params.Item)
	if err != nil {
		return nil, err
	}
	old := t.items[k]
	ok, err := evalCondition(deref(params.ConditionExpression), old, params.ExpressionAttributeNames, params.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, conditionFailed(old, params.ReturnValuesOnConditionCheckFailure)
	}
	t.items[k] = clone(params.Item)
	return &dyn.PutItemOutput{}, nil
}

func (f *Fake) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("GetItem"); err != nil {
		return nil, err
	}
	t := f.mustTable(deref(params.TableName))
	k, err := keyOf(t, params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := t.items[k]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: clone(item)}, nil
}

func (f *Fake) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("UpdateItem"); err != nil {
		return nil, err
	}
	t := f.mustTable(deref(params.TableName))
	next, err := f.prepareUpdate(t, params.Key, deref(params.ConditionExpression), deref(params.UpdateExpression),
		params.ExpressionAttributeNames, params.ExpressionAttributeValues, params.ReturnValuesOnConditionCheckFailure)
	if err != nil {
		return nil, err
	}
	k, _ := keyOf(t, params.Key)
	t.items[k] = next
	out := &dyn.UpdateItemOutput{}
	if params.ReturnValues != "" && params.ReturnValues != types.ReturnValueNone {
		out.Attributes = clone(next)
	}
	return out, nil
}

func (f *Fake) prepareUpdate(t *table, key map[string]types.AttributeValue, cond, update string, names map[string]string, values map[string]types.AttributeValue, onFail types.ReturnValuesOnConditionCheckFailure) (map[string]types.AttributeValue, error) {
	k, err := keyOf(t, key)
	if err != nil {
		return nil, err
	}
	old := t.items[k]
	ok, err := evalCondition(cond, old, names, values)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, conditionFailed(old, onFail)
	}
	next := clone(old)
	if next == nil {
		next = clone(key)
	}
	if err := applyUpdate(update, next, names, values); err != nil {
		return nil, err
	}
	return next, nil
}

func (f *Fake) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("TransactWriteItems"); err != nil {
		return nil, err
	}

	type write struct {
		t    *table
		key  string
		item map[string]types.AttributeValue
	}
	writes := make([]write, 0, len(params.TransactItems))
	reasons := make([]types.CancellationReason, len(params.TransactItems))
	failed := false

	for i, it := range params.TransactItems {
		reasons[i] = types.CancellationReason{Code: strPtr("None")}
		switch {
		case it.Put != nil:
			t := f.mustTable(deref(it.Put.TableName))
			k, err := keyOf(t, it.Put.Item)
			if err != nil {
				return nil, err
			}
			ok, err := evalCondition(deref(it.Put.ConditionExpression), t.items[k], it.Put.ExpressionAttributeNames, it.Put.ExpressionAttributeValues)
			if err != nil {
				return nil, err
			}
			if !ok {
				failed = true
				reasons[i] = types.CancellationReason{Code: strPtr("ConditionalCheckFailed"), Item: clone(t.items[k])}
				continue
			}
			writes = append(writes, write{t: t, key: k, item: clone(it.Put.Item)})
		case it.Update != nil:
			t := f.mustTable(deref(it.Update.TableName))
			next, err := f.prepareUpdate(t, it.Update.Key, deref(it.Update.ConditionExpression), deref(it.Update.UpdateExpression),
				it.Update.ExpressionAttributeNames, it.Update.ExpressionAttributeValues, "")
			var ccf *types.ConditionalCheckFailedException
			if errors.As(err, &ccf) {
				failed = true
				reasons[i] = types.CancellationReason{Code: strPtr("ConditionalCheckFailed")}
				continue
			}
			if err != nil {
				return nil, err
			}
			k, _ := keyOf(t, it.Update.Key)
			writes = append(writes, write{t: t, key: k, item: next})
		default:
			return nil, errors.New("dynamotest: unsupported transact item")
		}
	}

	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             strPtr("Transaction cancelled, please refer cancellation reasons for specific reasons"),
			CancellationReasons: reasons,
		}
	}
	for _, w := range writes {
		w.t.items[w.key] = w.item
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

func (f *Fake) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("Query"); err != nil {
		return nil, err
	}
	t := f.mustTable(deref(params.TableName))

	lhs, rhs, ok := strings.Cut(deref(params.KeyConditionExpression), " = ")
	if !ok {
		return nil, fmt.Errorf("dynamotest: unsupported key condition %q", deref(params.KeyConditionExpression))
	}
	attr := resolveName(strings.TrimSpace(lhs), params.ExpressionAttributeNames)
	want, ok := params.ExpressionAttributeValues[strings.TrimSpace(rhs)]
	if !ok {
		return nil, fmt.Errorf("dynamotest: missing value %s", rhs)
	}
	if params.IndexName != nil {
		indexed, ok := t.indexes[*params.IndexName]
		if !ok {
			return nil, fmt.Errorf("dynamotest: unknown index %q", *params.IndexName)
		}
		if indexed != attr {
			return nil, fmt.Errorf("dynamotest: index %q is keyed on %q, not %q", *params.IndexName, indexed, attr)
		}
	} else if attr != t.pk {
		return nil, fmt.Errorf("dynamotest: %q is not the table key", attr)
	}

	var matched []string
	for k, item := range t.items {
		if cmp, ok := compare(item[attr], want); ok && cmp == 0 {
			matched = append(matched, k)
		}
	}
	items, last := page(t, matched, params.ExclusiveStartKey, params.Limit)
	return &dyn.QueryOutput{Items: items, Count: int32(len(items)), LastEvaluatedKey: last}, nil
}

func (f *Fake) Scan(ctx context.Context, params *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("Scan"); err != nil {
		return nil, err
	}
	t := f.mustTable(deref(params.TableName))
	keys := make([]string, 0, len(t.items))
	for k := range t.items {
		keys = append(keys, k)
	}
	items, last := page(t, keys, params.ExclusiveStartKey, params.Limit)
	return &dyn.ScanOutput{Items: items, Count: int32(len(items)), LastEvaluatedKey: last}, nil
}

// page returns keys in ascending order starting after start, capped by limit.
func page(t *table, keys []string, start map[string]types.AttributeValue, limit *int32) ([]map[string]types.AttributeValue, map[string]types.AttributeValue) {
	sort.Strings(keys)
	if start != nil {
		if s, err := keyOf(t, start); err == nil {
			i := sort.SearchStrings(keys, s)
			if i < len(keys) && keys[i] == s {
				i++
			}
			keys = keys[i:]
		}
	}
	var last map[string]types.AttributeValue
	if limit != nil && int(*limit) < len(keys) {
		keys = keys[:*limit]
		last = map[string]types.AttributeValue{t.pk: &types.AttributeValueMemberS{Value: keys[len(keys)-1]}}
	}
	items := make([]map[string]types.AttributeValue, 0, len(keys))
	for _, k := range keys {
		items = append(items, clone(t.items[k]))
	}
	return items, last
}

func keyOf(t *table, item map[string]types.AttributeValue) (string, error) {
	v, ok := item[t.pk].(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("dynamotest: item has no string key %q", t.pk)
	}
	return v.Value, nil
}

func conditionFailed(old map[string]types.AttributeValue, onFail types.ReturnValuesOnConditionCheckFailure) error {
	ex := &types.ConditionalCheckFailedException{Message: strPtr("The conditional request failed")}
	if onFail == types.ReturnValuesOnConditionCheckFailureAllOld && old != nil {
		ex.Item = clone(old)
	}
	return ex
}

func clone(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	if item == nil {
		return nil
	}
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func strPtr(s string) *string { return &s }
