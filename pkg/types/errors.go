package types

import "errors"

var (
	errPair          = errors.New("types: pair is required")
	errStartEnd      = errors.New("types: start_price must be less than end_price")
	errTotalAmount   = errors.New("types: total_amount_quote must be positive")
	errMaxOpenOrders = errors.New("types: max_open_orders must be at least 1")
	errTakeProfit    = errors.New("types: take_profit_pct must be positive")
)
