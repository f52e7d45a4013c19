package shopcore

import (
	"time"

	"github.com/uptrace/bun"
)

type User struct {
	bun.BaseModel `bun:"table:shopcore_users,alias:u"`

	ID            int64  `bun:"id,pk,autoincrement"`
	Name          string `bun:"name,notnull"`
	Email         string `bun:"email,unique,nullzero"`
	PremiumStatus bool   `bun:"premium_status,notnull,default:false"`
}

type Product struct {
	bun.BaseModel `bun:"table:shopcore_products,alias:p"`

	ID       int64  `bun:"id,pk,autoincrement"`
	Name     string `bun:"name,notnull"`
	Category string `bun:"category,notnull"`
	Price    string `bun:"price,notnull"`
}

type Order struct {
	bun.BaseModel `bun:"table:shopcore_orders,alias:o"`

	ID        int64     `bun:"id,pk,autoincrement"`
	UserID    int64     `bun:"user_id,notnull"`
	ProductID int64     `bun:"product_id,nullzero"`
	OrderDate time.Time `bun:"order_date,notnull"`
	Status    string    `bun:"status,notnull"`

	User    *User    `bun:"rel:belongs-to,join:user_id=id"`
	Product *Product `bun:"rel:belongs-to,join:product_id=id"`
}
