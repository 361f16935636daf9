package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/agrihaat/api/internal/database"
	"github.com/agrihaat/api/internal/status"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	// maxPage keeps (page-1)*pageSize well inside int32 for the SQL offset.
	maxPage = 1_000_000
)

// Pagination describes one page of a listing.
type Pagination struct {
	Page       int
	PageSize   int
	TotalCount int64
	TotalPages int
}

// OrderPage is one page of orders, newest first.
type OrderPage struct {
	Orders     []*OrderResult
	Pagination Pagination
}

// GetOrder returns a single order with enriched items and presented status.
func (s *OrderService) GetOrder(ctx context.Context, orderID uuid.UUID) (*OrderResult, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return s.buildResult(ctx, s.store, order)
}

// ListByCustomer returns the customer's orders, optionally filtered by a
// presented status ("" or "all" is a wildcard).
func (s *OrderService) ListByCustomer(ctx context.Context, customerID uuid.UUID, statusFilter string, page, pageSize int) (*OrderPage, error) {
	filter, err := status.ParseFilter(statusFilter)
	if err != nil {
		return nil, err
	}
	page, pageSize = clampPage(page, pageSize)

	orders, err := s.store.ListOrdersByCustomer(ctx, database.ListOrdersByCustomerParams{
		CustomerID:         customerID,
		Status:             filterText(filter),
		RequirePaymentInfo: filter.RequirePaymentInfo,
		Limit:              int32(pageSize),
		Offset:             int32((page - 1) * pageSize),
	})
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	count, err := s.store.CountOrdersByCustomer(ctx, database.CountOrdersByCustomerParams{
		CustomerID:         customerID,
		Status:             filterText(filter),
		RequirePaymentInfo: filter.RequirePaymentInfo,
	})
	if err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}

	return s.buildPage(ctx, orders, page, pageSize, count)
}

// ListByFarm returns orders containing the farm's products, optionally
// filtered by a presented status.
func (s *OrderService) ListByFarm(ctx context.Context, farmID uuid.UUID, statusFilter string, page, pageSize int) (*OrderPage, error) {
	filter, err := status.ParseFilter(statusFilter)
	if err != nil {
		return nil, err
	}
	page, pageSize = clampPage(page, pageSize)

	orders, err := s.store.ListOrdersByFarm(ctx, database.ListOrdersByFarmParams{
		FarmID:             farmID,
		Status:             filterText(filter),
		RequirePaymentInfo: filter.RequirePaymentInfo,
		Limit:              int32(pageSize),
		Offset:             int32((page - 1) * pageSize),
	})
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	count, err := s.store.CountOrdersByFarm(ctx, database.CountOrdersByFarmParams{
		FarmID:             farmID,
		Status:             filterText(filter),
		RequirePaymentInfo: filter.RequirePaymentInfo,
	})
	if err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}

	return s.buildPage(ctx, orders, page, pageSize, count)
}

func (s *OrderService) buildPage(ctx context.Context, orders []database.Order, page, pageSize int, count int64) (*OrderPage, error) {
	results := make([]*OrderResult, len(orders))
	for i, o := range orders {
		r, err := s.buildResult(ctx, s.store, o)
		if err != nil {
			return nil, err
		}
		results[i] = r
	}

	totalPages := int((count + int64(pageSize) - 1) / int64(pageSize))
	return &OrderPage{
		Orders: results,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			TotalCount: count,
			TotalPages: totalPages,
		},
	}, nil
}

func clampPage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if page > maxPage {
		page = maxPage
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

func filterText(f status.Filter) pgtype.Text {
	if f.Stored == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: f.Stored, Valid: true}
}
