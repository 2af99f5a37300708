package decode

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// QuoteSchema lists, per quote field, the candidate field numbers in
// priority order. The first one present in a payload wins.
type QuoteSchema struct {
	Last      []int `mapstructure:"last"`
	Ask       []int `mapstructure:"ask"`
	Bid       []int `mapstructure:"bid"`
	High      []int `mapstructure:"high"`
	Low       []int `mapstructure:"low"`
	Ceiling   []int `mapstructure:"ceiling"`
	Floor     []int `mapstructure:"floor"`
	Volume    []int `mapstructure:"volume"`
	Turnover  []int `mapstructure:"turnover"`
	PrevClose []int `mapstructure:"prev_close"`
}

func DefaultQuoteSchema() QuoteSchema {
	return QuoteSchema{
		Last:      []int{5, 25},
		Ask:       []int{6},
		Bid:       []int{10, 42, 7},
		High:      []int{8, 13, 54},
		Low:       []int{12, 55},
		Ceiling:   []int{26, 21},
		Floor:     []int{27, 22},
		Volume:    []int{14, 48},
		Turnover:  []int{15, 38, 80, 81, 28, 33},
		PrevClose: []int{9, 62, 47},
	}
}

// Quote is a sparse market quote. Nil fields were not carried.
type Quote struct {
	Symbol    string   `json:"symbol"`
	Last      *float64 `json:"last,omitempty"`
	Bid       *float64 `json:"bid,omitempty"`
	Ask       *float64 `json:"ask,omitempty"`
	High      *float64 `json:"high,omitempty"`
	Low       *float64 `json:"low,omitempty"`
	Ceiling   *float64 `json:"ceiling,omitempty"`
	Floor     *float64 `json:"floor,omitempty"`
	Volume    *float64 `json:"volume,omitempty"`
	Turnover  *float64 `json:"turnover,omitempty"`
	PrevClose *float64 `json:"prevClose,omitempty"`
	ChangePct *float64 `json:"changePct,omitempty"`
}

// DecodeQuote resolves every quote field through its priority list. Only
// double and varint values are considered numeric. ChangePct is derived
// from last against the reference price (see ReferencePrice).
func DecodeQuote(payload []byte, schema QuoteSchema) (Quote, error) {
	values := make(map[int]float64)
	err := Scan(payload, func(f Field) bool {
		if f.Type == protowire.VarintType || f.Type == protowire.Fixed64Type {
			v, _ := f.Float()
			values[int(f.Num)] = v
		}
		return true
	})
	if err != nil {
		return Quote{}, fmt.Errorf("quote: %w", err)
	}

	pick := func(nums []int) *float64 {
		for _, n := range nums {
			if v, ok := values[n]; ok {
				return ptr(v)
			}
		}
		return nil
	}
	q := Quote{
		Last:      pick(schema.Last),
		Bid:       pick(schema.Bid),
		Ask:       pick(schema.Ask),
		High:      pick(schema.High),
		Low:       pick(schema.Low),
		Ceiling:   pick(schema.Ceiling),
		Floor:     pick(schema.Floor),
		Volume:    pick(schema.Volume),
		Turnover:  pick(schema.Turnover),
		PrevClose: pick(schema.PrevClose),
	}
	q.ChangePct = ChangePct(q.Last, q.ReferencePrice())
	return q, nil
}

// ReferencePrice is the price changePct is measured against: bid, or
// prevClose when bid is absent. Upstream reports bid in that slot.
func (q Quote) ReferencePrice() *float64 {
	if q.Bid != nil {
		return q.Bid
	}
	return q.PrevClose
}

// ChangePct returns (last-ref)/ref*100, or nil when either is missing or
// ref is zero.
func ChangePct(last, ref *float64) *float64 {
	if last == nil || ref == nil || *ref == 0 {
		return nil
	}
	return ptr((*last - *ref) / *ref * 100)
}

// Merge overlays the fields carried by in onto q. ChangePct is recomputed
// only when last or prevClose changed; otherwise q's value is kept.
func (q Quote) Merge(in Quote) Quote {
	out := q
	if in.Symbol != "" {
		out.Symbol = in.Symbol
	}
	set := func(dst **float64, src *float64) {
		if src != nil {
			*dst = ptr(*src)
		}
	}
	set(&out.Last, in.Last)
	set(&out.Bid, in.Bid)
	set(&out.Ask, in.Ask)
	set(&out.High, in.High)
	set(&out.Low, in.Low)
	set(&out.Ceiling, in.Ceiling)
	set(&out.Floor, in.Floor)
	set(&out.Volume, in.Volume)
	set(&out.Turnover, in.Turnover)
	set(&out.PrevClose, in.PrevClose)

	if changed(q.Last, in.Last) || changed(q.PrevClose, in.PrevClose) {
		if pct := ChangePct(out.Last, out.ReferencePrice()); pct != nil {
			out.ChangePct = pct
		}
	}
	return out
}

func changed(prev, next *float64) bool {
	return next != nil && (prev == nil || *prev != *next)
}

// Clone returns a deep copy.
func (q Quote) Clone() Quote {
	out := q
	for _, p := range []**float64{
		&out.Last, &out.Bid, &out.Ask, &out.High, &out.Low, &out.Ceiling,
		&out.Floor, &out.Volume, &out.Turnover, &out.PrevClose, &out.ChangePct,
	} {
		if *p != nil {
			*p = ptr(**p)
		}
	}
	return out
}
