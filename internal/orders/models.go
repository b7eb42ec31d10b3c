package orders

import "time"

type Product struct {
	ID         string
	Name       string
	Stock      int
	PriceCents int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Order struct {
	ID             string
	MemberID       string
	Status         Status // see status.go
	PayType        string // set on startPay ("", "TOSS", "POINT", ...)
	TotalCents     int
	Items          []OrderItem
	CreatedAt      time.Time
	LastModifiedAt time.Time
}

// OrderItem snapshots the unit price at order time; it is never
// recomputed from the products table afterwards.
type OrderItem struct {
	ID         int64
	OrderID    string
	ProductID  string
	Qty        int
	PriceCents int
}

type Member struct {
	ID        string
	Email     string
	BirthDate time.Time
	Gender    string // FEMALE | MALE
}
