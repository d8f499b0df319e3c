package domain

// Listing is one seller's catalog entry for one book: remaining quantity
// plus the running sold counter used by seller dashboards.
type Listing struct {
	SellerID  string `json:"seller_id"`
	BookID    string `json:"book_id"`
	Quantity  int    `json:"quantity"`
	SoldCount int    `json:"sold_count"`
}
