package domain

// LineItem is one product entry in the cart.
type LineItem struct {
	Product   Product `json:"product"`
	Quantity  int     `json:"quantity"`
	VariantID string  `json:"variant_id"`
}

// LineTotal returns unit price × quantity in minor units.
func (li LineItem) LineTotal() int64 {
	return li.Product.Price * int64(li.Quantity)
}

// CartState is a point-in-time copy of a cart. ItemCount and Subtotal are
// derived from Items when the snapshot is taken.
type CartState struct {
	Items         []LineItem `json:"items"`
	IsOpen        bool       `json:"is_open"`
	IsCheckingOut bool       `json:"is_checking_out"`
	ItemCount     int        `json:"item_count"`
	Subtotal      int64      `json:"subtotal"`
	Currency      string     `json:"currency,omitempty"`
}

// ItemCount sums the quantities of items.
func ItemCount(items []LineItem) int {
	var n int
	for _, li := range items {
		n += li.Quantity
	}
	return n
}

// Subtotal sums price × quantity over items.
func Subtotal(items []LineItem) int64 {
	var total int64
	for _, li := range items {
		total += li.LineTotal()
	}
	return total
}

// IndexOf returns the position of the line for productID, or -1.
func IndexOf(items []LineItem, productID string) int {
	for i := range items {
		if items[i].Product.ID == productID {
			return i
		}
	}
	return -1
}
