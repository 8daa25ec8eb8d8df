package dynamo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/example/storefront-orders/internal/domain/catalog"
	"github.com/example/storefront-orders/internal/domain/coupon"
	"github.com/example/storefront-orders/internal/domain/inventory"
	"github.com/example/storefront-orders/internal/domain/order"
	"github.com/example/storefront-orders/internal/money"
)

// BatchGetItem accepts at most 100 keys per call and TransactWriteItems at
// most 100 items.
const (
	batchGetLimit      = 100
	transactWriteLimit = 100
)

type Store struct {
	api    API
	tables Tables
	logger *slog.Logger
}

func NewStore(api API, tables Tables) *Store {
	return &Store{
		api:    api,
		tables: tables,
		logger: slog.Default().With("component", "dynamo-store"),
	}
}

func (s *Store) Stock() inventory.StockStore { return stockRepo{s: s} }
func (s *Store) Orders() order.Repository   { return orderRepo{s: s} }
func (s *Store) Coupons() coupon.Store      { return couponRepo{s: s} }

// Within runs fn with stores that apply stock changes immediately and record
// how to undo them. Order and coupon writes are staged and committed together
// in one TransactWriteItems call once fn returns, so an order is never visible
// without its coupon use. If fn or the commit fails the recorded undos run
// newest first.
func (s *Store) Within(ctx context.Context, fn func(ctx context.Context, uow order.UnitOfWork) error) error {
	j := &journal{}
	err := fn(ctx, unitOfWork{s: s, j: j})
	if err == nil {
		if err = s.commit(ctx, j.writes); err == nil {
			return nil
		}
	}

	if replayErr := j.replay(context.WithoutCancel(ctx)); replayErr != nil {
		s.logger.Error("compensation failed, manual repair needed",
			"cause", err,
			"error", replayErr,
		)
		return errors.Join(err, replayErr)
	}
	return err
}

// commit writes the staged items in one transaction. A cancelled transaction
// reports the first write whose condition failed.
func (s *Store) commit(ctx context.Context, writes []staged) error {
	if len(writes) == 0 {
		return nil
	}
	if len(writes) > transactWriteLimit {
		return fmt.Errorf("dynamo commit: %d writes exceed the transaction limit of %d", len(writes), transactWriteLimit)
	}

	items := make([]types.TransactWriteItem, len(writes))
	for i, w := range writes {
		items[i] = w.item
	}
	_, err := s.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})

	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		for i, reason := range tce.CancellationReasons {
			if i < len(writes) && aws.ToString(reason.Code) == "ConditionalCheckFailed" {
				s.logger.DebugContext(ctx, "unit of work rejected", "write", writes[i].desc)
				return writes[i].rejected(reason.Item)
			}
		}
	}
	if err != nil {
		return wrap("commit unit of work", err)
	}
	return nil
}

type unitOfWork struct {
	s *Store
	j *journal
}

func (u unitOfWork) Stock() inventory.StockStore { return stockRepo{s: u.s, j: u.j} }
func (u unitOfWork) Orders() order.Repository   { return orderRepo{s: u.s, j: u.j} }
func (u unitOfWork) Coupons() coupon.Ledger     { return couponRepo{s: u.s, j: u.j} }

// ============================================
// Catalog
// ============================================

type productItem struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Price int64          `json:"price"`
	Stock map[string]int `json:"stock"`
}

func (p productItem) toProduct() catalog.Product {
	out := catalog.Product{ID: p.ID, Name: p.Name, Price: money.Amount(p.Price)}
	for _, size := range catalog.Sizes {
		if q, ok := p.Stock[string(size)]; ok {
			out.Inventory = append(out.Inventory, catalog.StockLevel{Size: size, Quantity: q})
		}
	}
	return out
}

// PutProduct writes a product with its stock map.
func (s *Store) PutProduct(ctx context.Context, p catalog.Product) error {
	item := productItem{ID: p.ID, Name: p.Name, Price: int64(p.Price), Stock: map[string]int{}}
	for _, lvl := range p.Inventory {
		item.Stock[string(lvl.Size)] = lvl.Quantity
	}
	av, err := marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal product: %w", err)
	}
	if _, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tables.Products),
		Item:      av,
	}); err != nil {
		return wrap("put product", err)
	}
	return nil
}

func (s *Store) FindProductsByIDs(ctx context.Context, ids []string) ([]catalog.Product, error) {
	var products []catalog.Product
	for start := 0; start < len(ids); start += batchGetLimit {
		end := min(start+batchGetLimit, len(ids))
		keys := make([]map[string]types.AttributeValue, 0, end-start)
		for _, id := range ids[start:end] {
			keys = append(keys, key(id))
		}

		request := map[string]types.KeysAndAttributes{s.tables.Products: {Keys: keys}}
		for len(request) > 0 {
			out, err := s.api.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{RequestItems: request})
			if err != nil {
				return nil, wrap("batch get products", err)
			}
			for _, raw := range out.Responses[s.tables.Products] {
				var item productItem
				if err := unmarshal(raw, &item); err != nil {
					return nil, fmt.Errorf("failed to unmarshal product: %w", err)
				}
				products = append(products, item.toProduct())
			}
			request = out.UnprocessedKeys
		}
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

// ============================================
// Stock
// ============================================

type stockRepo struct {
	s *Store
	j *journal
}

func (r stockRepo) Decrement(ctx context.Context, productID string, size catalog.Size, qty int) (int, error) {
	left, err := r.s.decrement(ctx, productID, size, qty)
	if err != nil {
		return left, err
	}
	r.j.restock(productID, size, qty, func(ctx context.Context) error {
		return r.s.increment(ctx, productID, size, qty)
	})
	return left, nil
}

// Increment inside a unit of work first settles a pending restock for the
// same movement, so a rolled-back reservation is not restocked twice.
func (r stockRepo) Increment(ctx context.Context, productID string, size catalog.Size, qty int) error {
	if err := r.s.increment(ctx, productID, size, qty); err != nil {
		return err
	}
	if r.j.settleRestock(productID, size, qty) {
		return nil
	}
	r.j.record(fmt.Sprintf("take back %d of %s/%s", qty, productID, size), func(ctx context.Context) error {
		_, err := r.s.decrement(ctx, productID, size, qty)
		return err
	})
	return nil
}

func (s *Store) decrement(ctx context.Context, productID string, size catalog.Size, qty int) (int, error) {
	if qty <= 0 {
		return 0, inventory.ErrInvalidQuantity
	}

	out, err := s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                           aws.String(s.tables.Products),
		Key:                                 key(productID),
		UpdateExpression:                    aws.String("SET stock.#size = stock.#size - :qty"),
		ConditionExpression:                 aws.String("stock.#size >= :qty"),
		ExpressionAttributeNames:            map[string]string{"#size": string(size)},
		ExpressionAttributeValues:           map[string]types.AttributeValue{":qty": num(int64(qty))},
		ReturnValues:                        types.ReturnValueUpdatedNew,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		old, failed := conditionFailed(err)
		if !failed {
			return 0, wrap("decrement stock", err)
		}
		available, known, decodeErr := stockIn(old, size)
		if decodeErr != nil {
			return 0, decodeErr
		}
		if !known {
			return 0, inventory.ErrUnknownStock
		}
		return available, inventory.ErrInsufficientStock
	}

	left, _, err := stockIn(out.Attributes, size)
	return left, err
}

func (s *Store) increment(ctx context.Context, productID string, size catalog.Size, qty int) error {
	if qty <= 0 {
		return inventory.ErrInvalidQuantity
	}

	_, err := s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tables.Products),
		Key:                       key(productID),
		UpdateExpression:          aws.String("SET stock.#size = stock.#size + :qty"),
		ConditionExpression:       aws.String("attribute_exists(stock.#size)"),
		ExpressionAttributeNames:  map[string]string{"#size": string(size)},
		ExpressionAttributeValues: map[string]types.AttributeValue{":qty": num(int64(qty))},
	})
	if _, failed := conditionFailed(err); failed {
		return inventory.ErrUnknownStock
	}
	if err != nil {
		return wrap("increment stock", err)
	}
	return nil
}

func stockIn(item map[string]types.AttributeValue, size catalog.Size) (int, bool, error) {
	if len(item) == 0 {
		return 0, false, nil
	}
	var p productItem
	if err := unmarshal(item, &p); err != nil {
		return 0, false, fmt.Errorf("failed to unmarshal stock: %w", err)
	}
	q, ok := p.Stock[string(size)]
	return q, ok, nil
}
