package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/example/storefront-orders/internal/domain/order"
)

// OrdersByUserIndex is the global secondary index keyed by user_id.
const OrdersByUserIndex = "user_id-index"

type orderRepo struct {
	s *Store
	j *journal
}

// ErrOrderExists is returned when an order id is already taken.
var ErrOrderExists = errors.New("order already exists")

// Create inside a unit of work is staged and lands with the commit.
func (r orderRepo) Create(ctx context.Context, o *order.Order) error {
	item, err := marshal(o)
	if err != nil {
		return fmt.Errorf("failed to marshal order: %w", err)
	}
	put := &types.Put{
		TableName:           aws.String(r.s.tables.Orders),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	}
	exists := func(map[string]types.AttributeValue) error {
		return fmt.Errorf("%w: %s", ErrOrderExists, o.ID)
	}
	if r.j.stage("create order "+o.ID, types.TransactWriteItem{Put: put}, exists) {
		return nil
	}

	_, err = r.s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           put.TableName,
		Item:                put.Item,
		ConditionExpression: put.ConditionExpression,
	})
	if old, failed := conditionFailed(err); failed {
		return exists(old)
	}
	if err != nil {
		return wrap("create order", err)
	}
	return nil
}

func (r orderRepo) Get(ctx context.Context, id string) (*order.Order, error) {
	out, err := r.s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.s.tables.Orders),
		Key:            key(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, wrap("get order", err)
	}
	if len(out.Item) == 0 {
		return nil, order.ErrOrderNotFound
	}
	var o order.Order
	if err := unmarshal(out.Item, &o); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order: %w", err)
	}
	return &o, nil
}

func (r orderRepo) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	out := make([]order.Order, 0)
	var start map[string]types.AttributeValue
	for {
		page, err := r.s.api.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(r.s.tables.Orders),
			IndexName:                 aws.String(OrdersByUserIndex),
			KeyConditionExpression:    aws.String("user_id = :uid"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":uid": str(userID)},
			ExclusiveStartKey:         start,
		})
		if err != nil {
			return nil, wrap("query orders", err)
		}
		if out, err = appendOrders(out, page.Items); err != nil {
			return nil, err
		}
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		start = page.LastEvaluatedKey
	}
	newestFirst(out)
	return out, nil
}

func (r orderRepo) ListAll(ctx context.Context) ([]order.Order, error) {
	out := make([]order.Order, 0)
	var start map[string]types.AttributeValue
	for {
		page, err := r.s.api.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(r.s.tables.Orders),
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, wrap("scan orders", err)
		}
		if out, err = appendOrders(out, page.Items); err != nil {
			return nil, err
		}
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		start = page.LastEvaluatedKey
	}
	newestFirst(out)
	return out, nil
}

// Update replaces the stored order if its version still equals o.Version.
// Inside a unit of work the write is staged and o.Version is bumped ahead of
// the commit.
func (r orderRepo) Update(ctx context.Context, o *order.Order) error {
	next := *o
	next.Version = o.Version + 1
	item, err := marshal(&next)
	if err != nil {
		return fmt.Errorf("failed to marshal order: %w", err)
	}
	put := &types.Put{
		TableName:                           aws.String(r.s.tables.Orders),
		Item:                                item,
		ConditionExpression:                 aws.String("version = :v"),
		ExpressionAttributeValues:           map[string]types.AttributeValue{":v": num(int64(o.Version))},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	}
	if r.j.stage("update order "+o.ID, types.TransactWriteItem{Put: put}, staleOrMissing) {
		o.Version = next.Version
		return nil
	}

	_, err = r.s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                           put.TableName,
		Item:                                put.Item,
		ConditionExpression:                 put.ConditionExpression,
		ExpressionAttributeValues:           put.ExpressionAttributeValues,
		ReturnValuesOnConditionCheckFailure: put.ReturnValuesOnConditionCheckFailure,
	})
	if old, failed := conditionFailed(err); failed {
		return staleOrMissing(old)
	}
	if err != nil {
		return wrap("update order", err)
	}
	o.Version = next.Version
	return nil
}

func staleOrMissing(old map[string]types.AttributeValue) error {
	if len(old) == 0 {
		return order.ErrOrderNotFound
	}
	return order.ErrStaleOrder
}

func appendOrders(out []order.Order, items []map[string]types.AttributeValue) ([]order.Order, error) {
	for _, item := range items {
		var o order.Order
		if err := unmarshal(item, &o); err != nil {
			return nil, fmt.Errorf("failed to unmarshal order: %w", err)
		}
		out = append(out, o)
	}
	return out, nil
}

func newestFirst(orders []order.Order) {
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID > orders[j].ID
		}
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
}
