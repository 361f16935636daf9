package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type User struct {
	ID           uuid.UUID
	FullName     string
	Email        string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

type Farm struct {
	ID          uuid.UUID
	OwnerID     uuid.UUID
	Name        string
	Location    pgtype.Text
	Description pgtype.Text
	CreatedAt   time.Time
}

type Category struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
}

type StoreProduct struct {
	ID              uuid.UUID
	FarmID          uuid.UUID
	CategoryID      pgtype.UUID
	Name            string
	Price           pgtype.Numeric
	DiscountPercent pgtype.Numeric
	Stock           int32
	IsAvailable     bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Order struct {
	ID              uuid.UUID
	CustomerID      uuid.UUID
	Status          string
	Subtotal        pgtype.Numeric
	Discount        pgtype.Numeric
	Tax             pgtype.Numeric
	DeliveryFee     pgtype.Numeric
	Total           pgtype.Numeric
	PaymentStatus   string
	PaymentMethod   string
	DeliveryAddress string
	Notes           pgtype.Text
	Metadata        []byte
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type OrderItem struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	ProductID uuid.UUID
	Position  int32
	Quantity  int32
	UnitPrice pgtype.Numeric
	LineTotal pgtype.Numeric
	CreatedAt time.Time
}
