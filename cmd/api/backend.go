package main

import (
	"context"
	"fmt"

	"github.com/example/storefront-orders/internal/config"
	"github.com/example/storefront-orders/internal/domain/catalog"
	"github.com/example/storefront-orders/internal/domain/coupon"
	"github.com/example/storefront-orders/internal/domain/order"
	"github.com/example/storefront-orders/internal/infrastructure/store/dynamo"
	"github.com/example/storefront-orders/internal/infrastructure/store/memory"
	"github.com/example/storefront-orders/internal/infrastructure/store/postgres"
)

// backend is the set of ports one store implementation provides.
type backend struct {
	catalog catalog.Reader
	tx      order.Transactor
	orders  order.Repository
	coupons coupon.Store
	close   func() error
}

func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		db, err := postgres.Connect(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		s := postgres.NewStore(db)
		return &backend{catalog: s, tx: s, orders: s.Orders(), coupons: s.Coupons(), close: db.Close}, nil

	case config.BackendDynamo:
		client, err := dynamo.NewClient(ctx, cfg.AWSRegion, cfg.DynamoEndpoint)
		if err != nil {
			return nil, err
		}
		s := dynamo.NewStore(client, dynamo.Tables{
			Products: cfg.ProductsTable,
			Coupons:  cfg.CouponsTable,
			Orders:   cfg.OrdersTable,
		})
		return &backend{catalog: s, tx: s, orders: s.Orders(), coupons: s.Coupons(), close: func() error { return nil }}, nil

	default:
		s := memory.NewStore()
		seedCatalog(s)
		return &backend{catalog: s, tx: s, orders: s.Orders(), coupons: s.Coupons(), close: func() error { return nil }}, nil
	}
}

// seedCatalog gives the in-memory backend something to sell.
func seedCatalog(s *memory.Store) {
	s.PutProduct(catalog.Product{
		ID: "home-kit-2025", Name: "Home Kit 2025", Price: 8999,
		Inventory: []catalog.StockLevel{
			{Size: catalog.SizeS, Quantity: 10}, {Size: catalog.SizeM, Quantity: 20},
			{Size: catalog.SizeL, Quantity: 20}, {Size: catalog.SizeXL, Quantity: 10},
		},
	})
	s.PutProduct(catalog.Product{
		ID: "training-shorts", Name: "Training Shorts", Price: 2999,
		Inventory: []catalog.StockLevel{{Size: catalog.SizeM, Quantity: 15}, {Size: catalog.SizeL, Quantity: 15}},
	})
}
