package dynamo

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeDynamo is an in-memory stand-in for the DynamoDB operations Table
// uses. It understands just enough of the expression language the
// expression builder produces: attribute_exists / attribute_not_exists
// conditions, "SET #n = :v" updates and "=" / begins_with key conditions.
type fakeDynamo struct {
	mu       sync.Mutex
	items    map[string]map[string]types.AttributeValue
	pageSize int
	queries  int
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]types.AttributeValue)}
}

func newTestTable(t *testing.T) (*Table, *fakeDynamo) {
	t.Helper()
	fake := newFakeDynamo()
	table := New(fake, "guestapp-test")
	table.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }
	return table, fake
}

func str(av types.AttributeValue) string {
	if s, ok := av.(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func itemKey(item map[string]types.AttributeValue) string {
	return str(item["PK"]) + "|" + str(item["SK"])
}

func clone(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func conditionHolds(cond *string, exists bool) bool {
	if cond == nil {
		return true
	}
	c := *cond
	if strings.Contains(c, "attribute_not_exists") && exists {
		return false
	}
	if strings.Contains(c, "attribute_exists") && !exists {
		return false
	}
	return true
}

func conditionFailed() error {
	return &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[itemKey(in.Key)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: clone(item)}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := itemKey(in.Item)
	_, exists := f.items[key]
	if !conditionHolds(in.ConditionExpression, exists) {
		return nil, conditionFailed()
	}
	f.items[key] = clone(in.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := itemKey(in.Key)
	item, exists := f.items[key]
	if !conditionHolds(in.ConditionExpression, exists) {
		return nil, conditionFailed()
	}
	if !exists {
		item = clone(in.Key)
	} else {
		item = clone(item)
	}

	expr := strings.TrimSpace(aws.ToString(in.UpdateExpression))
	expr = strings.TrimPrefix(expr, "SET ")
	for _, assignment := range strings.Split(expr, ",") {
		parts := strings.SplitN(strings.TrimSpace(assignment), "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("fake: unsupported update %q", assignment)
		}
		name := in.ExpressionAttributeNames[strings.TrimSpace(parts[0])]
		item[name] = in.ExpressionAttributeValues[strings.TrimSpace(parts[1])]
	}
	f.items[key] = item
	return &dynamodb.UpdateItemOutput{Attributes: clone(item)}, nil
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := itemKey(in.Key)
	_, exists := f.items[key]
	if !conditionHolds(in.ConditionExpression, exists) {
		return nil, conditionFailed()
	}
	delete(f.items, key)
	return &dynamodb.DeleteItemOutput{}, nil
}

type keyMatcher struct {
	attr   string
	value  string
	prefix bool
}

func (m keyMatcher) matches(item map[string]types.AttributeValue) bool {
	v := str(item[m.attr])
	if m.prefix {
		return strings.HasPrefix(v, m.value)
	}
	return v == m.value
}

func parseKeyCondition(in *dynamodb.QueryInput) ([]keyMatcher, error) {
	var matchers []keyMatcher
	for _, part := range strings.Split(aws.ToString(in.KeyConditionExpression), " AND ") {
		part = strings.TrimSpace(part)
		part = strings.TrimSuffix(strings.TrimPrefix(part, "("), ")")
		if strings.HasPrefix(part, "begins_with") {
			inner := part[strings.Index(part, "(")+1:]
			inner = strings.TrimSuffix(inner, ")")
			args := strings.Split(inner, ",")
			matchers = append(matchers, keyMatcher{
				attr:   in.ExpressionAttributeNames[strings.TrimSpace(args[0])],
				value:  str(in.ExpressionAttributeValues[strings.TrimSpace(args[1])]),
				prefix: true,
			})
			continue
		}
		sides := strings.SplitN(part, "=", 2)
		if len(sides) != 2 {
			return nil, fmt.Errorf("fake: unsupported key condition %q", part)
		}
		matchers = append(matchers, keyMatcher{
			attr:  in.ExpressionAttributeNames[strings.TrimSpace(sides[0])],
			value: str(in.ExpressionAttributeValues[strings.TrimSpace(sides[1])]),
		})
	}
	return matchers, nil
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++

	matchers, err := parseKeyCondition(in)
	if err != nil {
		return nil, err
	}
	sortAttr := "SK"
	if aws.ToString(in.IndexName) == IndexGSI1 {
		sortAttr = "GSI1SK"
	}

	var matched []map[string]types.AttributeValue
	for _, item := range f.items {
		ok := true
		for _, m := range matchers {
			if !m.matches(item) {
				ok = false
				break
			}
		}
		if ok {
			matched = append(matched, clone(item))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := str(matched[i][sortAttr]), str(matched[j][sortAttr])
		if a != b {
			return a < b
		}
		return itemKey(matched[i]) < itemKey(matched[j])
	})

	start := 0
	if off, ok := in.ExclusiveStartKey["offset"]; ok {
		start, _ = strconv.Atoi(off.(*types.AttributeValueMemberN).Value)
	}
	matched = matched[min(start, len(matched)):]

	limit := f.pageSize
	if in.Limit != nil {
		limit = int(*in.Limit)
	}
	out := &dynamodb.QueryOutput{}
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			"offset": &types.AttributeValueMemberN{Value: strconv.Itoa(start + limit)},
		}
	}
	out.Items = matched
	out.Count = int32(len(matched))
	return out, nil
}

func (f *fakeDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	reasons := make([]types.CancellationReason, len(in.TransactItems))
	failed := false
	for i, ti := range in.TransactItems {
		reasons[i] = types.CancellationReason{Code: aws.String("None")}
		if ti.Put == nil {
			return nil, fmt.Errorf("fake: only Put is supported in transactions")
		}
		_, exists := f.items[itemKey(ti.Put.Item)]
		if !conditionHolds(ti.Put.ConditionExpression, exists) {
			reasons[i] = types.CancellationReason{Code: aws.String("ConditionalCheckFailed")}
			failed = true
		}
	}
	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             aws.String("Transaction cancelled"),
			CancellationReasons: reasons,
		}
	}
	for _, ti := range in.TransactItems {
		f.items[itemKey(ti.Put.Item)] = clone(ti.Put.Item)
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

// put stores a raw item, bypassing Table. Used to seed records in the shape
// older writers produced.
func (f *fakeDynamo) put(item map[string]types.AttributeValue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[itemKey(item)] = clone(item)
}

func (f *fakeDynamo) has(pk, sk string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.items[pk+"|"+sk]
	return ok
}
