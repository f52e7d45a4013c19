package shipstream

import (
	"time"

	"github.com/uptrace/bun"
)

type Warehouse struct {
	bun.BaseModel `bun:"table:shipstream_warehouses,alias:w"`

	ID          int64  `bun:"id,pk,autoincrement"`
	Location    string `bun:"location,notnull"`
	ManagerName string `bun:"manager_name,notnull"`
}

type Shipment struct {
	bun.BaseModel `bun:"table:shipstream_shipments,alias:s"`

	ID               int64     `bun:"id,pk,autoincrement"`
	OrderID          int64     `bun:"order_id,nullzero"`
	TrackingNumber   string    `bun:"tracking_number,unique,notnull"`
	EstimatedArrival time.Time `bun:"estimated_arrival,nullzero"`
	ShipmentDate     time.Time `bun:"shipment_date,nullzero"`
	CustomerName     string    `bun:"customer_name"`
	Status           string    `bun:"status"`
	Amount           string    `bun:"amount,notnull,default:'0.00'"`
	Notes            string    `bun:"notes"`
}

type TrackingEvent struct {
	bun.BaseModel `bun:"table:shipstream_tracking_events,alias:te"`

	ID           int64     `bun:"id,pk,autoincrement"`
	ShipmentID   int64     `bun:"shipment_id,notnull"`
	WarehouseID  int64     `bun:"warehouse_id,notnull"`
	Timestamp    time.Time `bun:"timestamp,notnull"`
	StatusUpdate string    `bun:"status_update,notnull"`
}

// ReverseShipment is a return in flight, keyed by the forward shipment's
// tracking number (original AWB).
type ReverseShipment struct {
	bun.BaseModel `bun:"table:shipstream_reverse_shipments,alias:rs"`

	ID            int64     `bun:"id,pk,autoincrement"`
	ReverseNumber string    `bun:"reverse_number,unique,notnull"`
	OriginalAWB   string    `bun:"original_awb,notnull"`
	ReturnDate    time.Time `bun:"return_date,notnull"`
	Reason        string    `bun:"reason,notnull"`
	RefundStatus  string    `bun:"refund_status,notnull"`
}

type NdrEvent struct {
	bun.BaseModel `bun:"table:shipstream_ndr_events,alias:ne"`

	ID           int64     `bun:"id,pk,autoincrement"`
	NdrNumber    string    `bun:"ndr_number,unique,notnull"`
	OriginalAWB  string    `bun:"original_awb,notnull"`
	NdrDate      time.Time `bun:"ndr_date,notnull"`
	Issue        string    `bun:"issue,notnull"`
	Attempts     int       `bun:"attempts,notnull,default:1"`
	FinalOutcome string    `bun:"final_outcome,notnull"`
}

type ExchangeShipment struct {
	bun.BaseModel `bun:"table:shipstream_exchange_shipments,alias:es"`

	ID             int64     `bun:"id,pk,autoincrement"`
	ExchangeNumber string    `bun:"exchange_number,unique,notnull"`
	OriginalAWB    string    `bun:"original_awb,notnull"`
	ExchangeDate   time.Time `bun:"exchange_date,notnull"`
	NewItem        string    `bun:"new_item,notnull"`
	Status         string    `bun:"status,notnull"`
}

// ReturnReceipt records the completed hand-off of a return: the item photo
// the customer submitted and the public return id they were given.
type ReturnReceipt struct {
	bun.BaseModel `bun:"table:shipstream_return_receipts,alias:rr"`

	ID            int64     `bun:"id,pk,autoincrement"`
	ReturnID      string    `bun:"return_id,unique,notnull"`
	ReverseNumber string    `bun:"reverse_number,notnull"`
	UserEmail     string    `bun:"user_email"`
	ImageData     []byte    `bun:"image_data,notnull,type:bytea"`
	CreatedAt     time.Time `bun:"created_at,notnull"`
}
