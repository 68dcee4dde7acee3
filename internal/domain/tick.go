package domain

// RawTick is one exchange trade event.
type RawTick struct {
	Timestamp    int64   `json:"timestamp"` // ms
	Price        float64 `json:"price"`
	Quantity     float64 `json:"quantity"`
	IsBuyerMaker bool    `json:"is_buyer_maker"` // true = seller aggressor
}

// IsBuy reports whether the trade was buyer-initiated (lifted the ask).
func (t RawTick) IsBuy() bool {
	return !t.IsBuyerMaker
}

// IsSell reports whether the trade was seller-initiated (hit the bid).
func (t RawTick) IsSell() bool {
	return t.IsBuyerMaker
}
