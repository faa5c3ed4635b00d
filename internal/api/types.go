package api

import "github.com/VictorJustesen/Stocksimulatedapi/internal/model"

// Triple is one aggregate on the wire: first=average, second=max, third=min.
type Triple struct {
	First  float64 `json:"first"`
	Second float64 `json:"second"`
	Third  float64 `json:"third"`
}

// PriceResponse from GET /stock/{ticker}/price
type PriceResponse struct {
	Ticker string  `json:"ticker"`
	Price  float64 `json:"price"`
	Tick   int64   `json:"tick"`
}

// HealthResponse from GET /health
type HealthResponse struct {
	Status     string    `json:"status"`
	Tick       int64     `json:"tick"`
	InstanceID string    `json:"instance_id"`
	Build      BuildInfo `json:"build"`
}

// BuildInfo is the server build reported by /health.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

// errorBody is the JSON error envelope of non-2xx responses.
type errorBody struct {
	Error string `json:"error"`
}

// ToRecords converts wire triples of granularity g to aggregate records.
// Seq numbers count up from 1 in response order.
func ToRecords(g model.Granularity, triples []Triple) []model.AggregateRecord {
	out := make([]model.AggregateRecord, len(triples))
	for i, t := range triples {
		out[i] = model.AggregateRecord{
			Granularity: g,
			Average:     t.First,
			Max:         t.Second,
			Min:         t.Third,
			Seq:         int64(i + 1),
		}
	}
	return out
}
