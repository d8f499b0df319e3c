package domain

// WarehouseItem is one seller's stock of one book. Quantity never goes
// negative: decrements clamp at zero.
type WarehouseItem struct {
	BookID     string `json:"book_id"`
	SellerID   string `json:"seller_id"`
	Quantity   int    `json:"quantity"`
	PriceCents int64  `json:"price_cents"`
}

// DecrementResult reports one stock decrement. Clamped distinguishes a
// floor-at-zero write from an exact decrement so reconciliation can tell
// them apart; Removed is the quantity actually taken.
type DecrementResult struct {
	NewQuantity int
	Removed     int
	Clamped     bool
}
