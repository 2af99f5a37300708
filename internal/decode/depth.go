package decode

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// DepthLevels is the number of rows every depth snapshot is rendered to.
const DepthLevels = 10

// DepthSchema holds the field numbers of the depth snapshot message and of
// its nested price level.
type DepthSchema struct {
	Bids   int `mapstructure:"bids"`
	Asks   int `mapstructure:"asks"`
	Price  int `mapstructure:"price"`
	Qty    int `mapstructure:"qty"`
	Orders int `mapstructure:"orders"`
}

func DefaultDepthSchema() DepthSchema {
	return DepthSchema{Bids: 1, Asks: 2, Price: 1, Qty: 2, Orders: 3}
}

// Level is one side of one book row as sent upstream.
type Level struct {
	Price  float64
	Qty    int64
	Orders int64
}

// DepthRow pairs the i-th bid with the i-th ask. A side that the book does
// not reach is left nil.
type DepthRow struct {
	Level     int     `json:"level"`
	BidOrders *int64  `json:"bid_order"`
	BidQty    *int64  `json:"bid_qty"`
	BidPrice  *string `json:"bid_price"`
	AskPrice  *string `json:"ask_price"`
	AskQty    *int64  `json:"ask_qty"`
	AskOrders *int64  `json:"ask_order"`
}

// DecodeDepth parses a depth snapshot and aligns it into DepthLevels rows.
func DecodeDepth(payload []byte, schema DepthSchema) ([]DepthRow, error) {
	var (
		bids, asks []Level
		lvlErr     error
	)
	err := Scan(payload, func(f Field) bool {
		if f.Type != protowire.BytesType {
			return true
		}
		var side *[]Level
		switch int(f.Num) {
		case schema.Bids:
			side = &bids
		case schema.Asks:
			side = &asks
		default:
			return true
		}
		lvl, err := decodeLevel(f.Bytes, schema)
		if err != nil {
			lvlErr = err
			return false
		}
		*side = append(*side, lvl)
		return true
	})
	if err == nil {
		err = lvlErr
	}
	if err != nil {
		return nil, fmt.Errorf("depth: %w", err)
	}
	return AlignDepth(bids, asks), nil
}

func decodeLevel(b []byte, schema DepthSchema) (Level, error) {
	var lvl Level
	err := Scan(b, func(f Field) bool {
		switch int(f.Num) {
		case schema.Price:
			if v, ok := f.Float(); ok && f.Type != protowire.VarintType {
				lvl.Price = v
			}
		case schema.Qty:
			if f.Type == protowire.VarintType {
				lvl.Qty = int64(f.Varint)
			}
		case schema.Orders:
			if f.Type == protowire.VarintType {
				lvl.Orders = int64(f.Varint)
			}
		}
		return true
	})
	return lvl, err
}

// AlignDepth renders bids and asks into exactly DepthLevels rows, best
// price first.
func AlignDepth(bids, asks []Level) []DepthRow {
	rows := make([]DepthRow, DepthLevels)
	for i := range rows {
		row := DepthRow{Level: i + 1}
		if i < len(bids) {
			b := bids[i]
			row.BidOrders, row.BidQty, row.BidPrice = ptr(b.Orders), ptr(b.Qty), ptr(fmt.Sprintf("%.2f", b.Price))
		}
		if i < len(asks) {
			a := asks[i]
			row.AskOrders, row.AskQty, row.AskPrice = ptr(a.Orders), ptr(a.Qty), ptr(fmt.Sprintf("%.2f", a.Price))
		}
		rows[i] = row
	}
	return rows
}

func ptr[T any](v T) *T { return &v }
