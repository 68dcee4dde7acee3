package domain

import "errors"

var (
	ErrInvalidScale   = errors.New("tick scale must be greater than zero")
	ErrInvalidPeriod  = errors.New("candle period must be greater than zero")
	ErrInvalidWindow  = errors.New("window is shorter than the algorithm minimum")
	ErrInvalidRatio   = errors.New("imbalance ratio must be greater than one")
	ErrOutOfOrderTick = errors.New("tick timestamp precedes the open candle")
	ErrUnknownSymbol  = errors.New("unknown symbol")
)
