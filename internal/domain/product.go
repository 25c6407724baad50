package domain

// Product is the slice of a catalog entry the cart needs. Prices are in
// minor units (cents) of Currency.
type Product struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	Handle           string `json:"handle"`
	ImageURL         string `json:"image_url,omitempty"`
	Price            int64  `json:"price"`
	Currency         string `json:"currency"`
	DefaultVariantID string `json:"default_variant_id"`
}
