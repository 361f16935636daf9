package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// ── Farms ──

type CreateFarmParams struct {
	OwnerID     uuid.UUID
	Name        string
	Location    pgtype.Text
	Description pgtype.Text
}

const createFarm = `
INSERT INTO farms (owner_id, name, location, description)
VALUES ($1, $2, $3, $4)
RETURNING id, owner_id, name, location, description, created_at
`

func (q *Queries) CreateFarm(ctx context.Context, arg CreateFarmParams) (Farm, error) {
	var f Farm
	err := q.db.QueryRow(ctx, createFarm, arg.OwnerID, arg.Name, arg.Location, arg.Description).
		Scan(&f.ID, &f.OwnerID, &f.Name, &f.Location, &f.Description, &f.CreatedAt)
	return f, err
}

const getFarm = `
SELECT id, owner_id, name, location, description, created_at
FROM farms WHERE id = $1
`

func (q *Queries) GetFarm(ctx context.Context, id uuid.UUID) (Farm, error) {
	var f Farm
	err := q.db.QueryRow(ctx, getFarm, id).
		Scan(&f.ID, &f.OwnerID, &f.Name, &f.Location, &f.Description, &f.CreatedAt)
	return f, err
}

const listFarms = `
SELECT id, owner_id, name, location, description, created_at
FROM farms ORDER BY name
`

func (q *Queries) ListFarms(ctx context.Context) ([]Farm, error) {
	rows, err := q.db.Query(ctx, listFarms)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectFarms(rows)
}

func collectFarms(rows pgx.Rows) ([]Farm, error) {
	var farms []Farm
	for rows.Next() {
		var f Farm
		if err := rows.Scan(&f.ID, &f.OwnerID, &f.Name, &f.Location, &f.Description, &f.CreatedAt); err != nil {
			return nil, err
		}
		farms = append(farms, f)
	}
	return farms, rows.Err()
}

// ── Categories ──

const createCategory = `
INSERT INTO categories (name) VALUES ($1)
RETURNING id, name, created_at
`

func (q *Queries) CreateCategory(ctx context.Context, name string) (Category, error) {
	var c Category
	err := q.db.QueryRow(ctx, createCategory, name).Scan(&c.ID, &c.Name, &c.CreatedAt)
	return c, err
}

const listCategories = `SELECT id, name, created_at FROM categories ORDER BY name`

func (q *Queries) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := q.db.Query(ctx, listCategories)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cats []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			return nil, err
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

// ── Store products ──

const productColumns = `id, farm_id, category_id, name, price, discount_percent, stock, is_available, created_at, updated_at`

func scanProduct(row interface{ Scan(dest ...any) error }) (StoreProduct, error) {
	var p StoreProduct
	err := row.Scan(
		&p.ID, &p.FarmID, &p.CategoryID, &p.Name, &p.Price, &p.DiscountPercent,
		&p.Stock, &p.IsAvailable, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

type CreateProductParams struct {
	FarmID          uuid.UUID
	CategoryID      pgtype.UUID
	Name            string
	Price           pgtype.Numeric
	DiscountPercent pgtype.Numeric
	Stock           int32
	IsAvailable     bool
}

const createProduct = `
INSERT INTO store_products (farm_id, category_id, name, price, discount_percent, stock, is_available)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + productColumns

func (q *Queries) CreateProduct(ctx context.Context, arg CreateProductParams) (StoreProduct, error) {
	return scanProduct(q.db.QueryRow(ctx, createProduct,
		arg.FarmID, arg.CategoryID, arg.Name, arg.Price, arg.DiscountPercent, arg.Stock, arg.IsAvailable,
	))
}

type UpdateProductParams struct {
	ID              uuid.UUID
	FarmID          uuid.UUID
	CategoryID      pgtype.UUID
	Name            string
	Price           pgtype.Numeric
	DiscountPercent pgtype.Numeric
	Stock           int32
	IsAvailable     bool
}

const updateProduct = `
UPDATE store_products
SET category_id = $3, name = $4, price = $5, discount_percent = $6, stock = $7, is_available = $8, updated_at = now()
WHERE id = $1 AND farm_id = $2
RETURNING ` + productColumns

func (q *Queries) UpdateProduct(ctx context.Context, arg UpdateProductParams) (StoreProduct, error) {
	return scanProduct(q.db.QueryRow(ctx, updateProduct,
		arg.ID, arg.FarmID, arg.CategoryID, arg.Name, arg.Price, arg.DiscountPercent, arg.Stock, arg.IsAvailable,
	))
}

type SoftDeleteProductParams struct {
	ID     uuid.UUID
	FarmID uuid.UUID
}

const softDeleteProduct = `
UPDATE store_products
SET is_available = false, updated_at = now()
WHERE id = $1 AND farm_id = $2
RETURNING id
`

func (q *Queries) SoftDeleteProduct(ctx context.Context, arg SoftDeleteProductParams) (uuid.UUID, error) {
	var id uuid.UUID
	err := q.db.QueryRow(ctx, softDeleteProduct, arg.ID, arg.FarmID).Scan(&id)
	return id, err
}

const listProductsByFarm = `
SELECT ` + productColumns + `
FROM store_products
WHERE farm_id = $1
ORDER BY name
`

func (q *Queries) ListProductsByFarm(ctx context.Context, farmID uuid.UUID) ([]StoreProduct, error) {
	rows, err := q.db.Query(ctx, listProductsByFarm, farmID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []StoreProduct
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}
