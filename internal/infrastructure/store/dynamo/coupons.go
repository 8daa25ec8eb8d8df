package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/example/storefront-orders/internal/domain/coupon"
)

// Codes are kept unique by a guard item per code, written in the same
// transaction as the coupon.
const codeGuardPrefix = "CODE#"

type couponRepo struct {
	s *Store
	j *journal
}

type codeGuard struct {
	ID       string `json:"id"`
	CouponID string `json:"coupon_id"`
}

func couponItem(c *coupon.Coupon) (map[string]types.AttributeValue, error) {
	av, err := marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal coupon: %w", err)
	}
	// expiry as epoch seconds, for the usage condition
	av["expires_at"] = num(c.ExpiryDate.Unix())
	return av, nil
}

func (r couponRepo) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	out, err := r.s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.s.tables.Coupons),
		Key:            key(codeGuardPrefix + code),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, wrap("get coupon code", err)
	}
	if len(out.Item) == 0 {
		return nil, coupon.ErrNotFound
	}
	var guard codeGuard
	if err := unmarshal(out.Item, &guard); err != nil {
		return nil, fmt.Errorf("failed to unmarshal code guard: %w", err)
	}
	return r.Get(ctx, guard.CouponID)
}

func (r couponRepo) Get(ctx context.Context, id string) (*coupon.Coupon, error) {
	out, err := r.s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.s.tables.Coupons),
		Key:            key(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, wrap("get coupon", err)
	}
	if len(out.Item) == 0 {
		return nil, coupon.ErrNotFound
	}
	var c coupon.Coupon
	if err := unmarshal(out.Item, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal coupon: %w", err)
	}
	return &c, nil
}

func (r couponRepo) List(ctx context.Context) ([]coupon.Coupon, error) {
	out := make([]coupon.Coupon, 0)
	var start map[string]types.AttributeValue
	for {
		page, err := r.s.api.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(r.s.tables.Coupons),
			FilterExpression:  aws.String("attribute_exists(code)"),
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, wrap("scan coupons", err)
		}
		for _, item := range page.Items {
			var c coupon.Coupon
			if err := unmarshal(item, &c); err != nil {
				return nil, fmt.Errorf("failed to unmarshal coupon: %w", err)
			}
			out = append(out, c)
		}
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		start = page.LastEvaluatedKey
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// IncrementUsage inside a unit of work is staged and lands with the commit,
// in the same transaction as the order it pays for.
func (r couponRepo) IncrementUsage(ctx context.Context, id string, now time.Time) error {
	update := &types.Update{
		TableName:           aws.String(r.s.tables.Coupons),
		Key:                 key(id),
		UpdateExpression:    aws.String("SET times_used = times_used + :one, updated_at = :updated"),
		ConditionExpression: aws.String("is_active = :active AND expires_at > :now AND times_used < usage_limit"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one":     num(1),
			":active":  &types.AttributeValueMemberBOOL{Value: true},
			":now":     num(now.Unix()),
			":updated": str(now.Format(time.RFC3339Nano)),
		},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	}
	if r.j.stage("use coupon "+id, types.TransactWriteItem{Update: update}, usageRejected) {
		return nil
	}

	_, err := r.s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                           update.TableName,
		Key:                                 update.Key,
		UpdateExpression:                    update.UpdateExpression,
		ConditionExpression:                 update.ConditionExpression,
		ExpressionAttributeValues:           update.ExpressionAttributeValues,
		ReturnValuesOnConditionCheckFailure: update.ReturnValuesOnConditionCheckFailure,
	})
	if old, failed := conditionFailed(err); failed {
		return usageRejected(old)
	}
	if err != nil {
		return wrap("increment coupon usage", err)
	}
	return nil
}

func usageRejected(old map[string]types.AttributeValue) error {
	if len(old) == 0 {
		return coupon.ErrNotFound
	}
	return coupon.ErrUsageConflict
}

func (r couponRepo) Insert(ctx context.Context, c *coupon.Coupon) error {
	item, err := couponItem(c)
	if err != nil {
		return err
	}
	guard, err := marshal(codeGuard{ID: codeGuardPrefix + c.Code, CouponID: c.ID})
	if err != nil {
		return fmt.Errorf("failed to marshal code guard: %w", err)
	}

	_, err = r.s.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:           aws.String(r.s.tables.Coupons),
				Item:                item,
				ConditionExpression: aws.String("attribute_not_exists(id)"),
			}},
			{Put: &types.Put{
				TableName:           aws.String(r.s.tables.Coupons),
				Item:                guard,
				ConditionExpression: aws.String("attribute_not_exists(id)"),
			}},
		},
	})
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		return coupon.ErrDuplicateCode
	}
	if err != nil {
		return wrap("insert coupon", err)
	}
	return nil
}

// Save writes the administrator-editable fields. Code and times_used are
// never touched here.
func (r couponRepo) Save(ctx context.Context, c *coupon.Coupon) error {
	item, err := couponItem(c)
	if err != nil {
		return err
	}

	_, err = r.s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.s.tables.Coupons),
		Key:       key(c.ID),
		UpdateExpression: aws.String("SET discount_type = :dt, discount_value = :dv, expiry_date = :exp, " +
			"expires_at = :expAt, min_purchase = :min, usage_limit = :lim, is_active = :active, updated_at = :updated"),
		ConditionExpression: aws.String("attribute_exists(code)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":dt":      item["discount_type"],
			":dv":      item["discount_value"],
			":exp":     item["expiry_date"],
			":expAt":   item["expires_at"],
			":min":     item["min_purchase"],
			":lim":     item["usage_limit"],
			":active":  item["is_active"],
			":updated": item["updated_at"],
		},
	})
	if _, failed := conditionFailed(err); failed {
		return coupon.ErrNotFound
	}
	if err != nil {
		return wrap("save coupon", err)
	}
	return nil
}

func (r couponRepo) Delete(ctx context.Context, id string) error {
	c, err := r.Get(ctx, id)
	if err != nil {
		return err
	}

	_, err = r.s.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Delete: &types.Delete{
				TableName:           aws.String(r.s.tables.Coupons),
				Key:                 key(id),
				ConditionExpression: aws.String("attribute_exists(id)"),
			}},
			{Delete: &types.Delete{
				TableName: aws.String(r.s.tables.Coupons),
				Key:       key(codeGuardPrefix + c.Code),
			}},
		},
	})
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		return coupon.ErrNotFound
	}
	if err != nil {
		return wrap("delete coupon", err)
	}
	return nil
}
