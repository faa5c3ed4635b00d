// Package httpapi exposes the simulator over HTTP with gin.
//
// Routes keep the paths and response shapes of the original service so
// existing clients keep working:
//
//	GET /stock/:ticker/:interval/:count   [{"first":avg,"second":max,"third":min}, ...]
//	GET /group/tickers/:groupName         ["NOVO", ...]
//	GET /stock/nationalities/:tickers     {"NOVO":"Denmark", ...}
//	GET /search/stocks/:query             ["AAPL", ...]
//
// plus /stock/:ticker/price, /health and the websocket feed.
package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/VictorJustesen/Stocksimulatedapi/internal/engine"
	"github.com/VictorJustesen/Stocksimulatedapi/internal/market"
	"github.com/VictorJustesen/Stocksimulatedapi/internal/model"
	"github.com/VictorJustesen/Stocksimulatedapi/internal/version"
)

// Simulator is the query side of the engine.
type Simulator interface {
	HistoricalData(ticker string, g model.Granularity, count int) ([]model.AggregateRecord, error)
	TickersByGroup(name string) ([]string, error)
	Quote(ticker string) (float64, int64, error)
	CurrentTick() int64
}

// Directory answers instrument metadata lookups.
type Directory interface {
	Nationalities(tickers []string) map[string]string
	Search(query string) []string
}

// Triple is the legacy wire shape of one aggregate record.
type Triple struct {
	First  float64 `json:"first"`  // average
	Second float64 `json:"second"` // max
	Third  float64 `json:"third"`  // min
}

// PriceResponse is the body of /stock/:ticker/price.
type PriceResponse struct {
	Ticker string  `json:"ticker"`
	Price  float64 `json:"price"`
	Tick   int64   `json:"tick"`
}

// HealthResponse is the body of /health.
type HealthResponse struct {
	Status     string       `json:"status"`
	Tick       int64        `json:"tick"`
	InstanceID string       `json:"instance_id"`
	Build      version.Info `json:"build"`
}

// Handler serves the simulator routes.
type Handler struct {
	sim        Simulator
	dir        Directory
	instanceID string
}

// NewHandler registers the simulator routes on r.
func NewHandler(r gin.IRouter, sim Simulator, dir Directory, instanceID string) *Handler {
	h := &Handler{sim: sim, dir: dir, instanceID: instanceID}

	r.GET("/health", h.Health)

	stock := r.Group("/stock")
	{
		stock.GET("/nationalities/:tickers", h.Nationalities)
		stock.GET("/:ticker/price", h.Price)
		stock.GET("/:ticker/:interval/:count", h.HistoricalData)
	}
	r.GET("/group/tickers/:groupName", h.GroupTickers)
	r.GET("/search/stocks/:query", h.Search)

	return h
}

// HistoricalData serves the most recent count records, oldest first.
func (h *Handler) HistoricalData(c *gin.Context) {
	g, err := model.ParseGranularity(c.Param("interval"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	count, err := strconv.Atoi(c.Param("count"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "count must be an integer"})
		return
	}

	recs, err := h.sim.HistoricalData(c.Param("ticker"), g, count)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]Triple, len(recs))
	for i, r := range recs {
		out[i] = Triple{First: r.Average, Second: r.Max, Third: r.Min}
	}
	c.JSON(http.StatusOK, out)
}

// GroupTickers serves the tickers of a group.
func (h *Handler) GroupTickers(c *gin.Context) {
	tickers, err := h.sim.TickersByGroup(c.Param("groupName"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tickers)
}

// Nationalities serves ticker -> nationality for "[A,B]" or "A,B".
func (h *Handler) Nationalities(c *gin.Context) {
	c.JSON(http.StatusOK, h.dir.Nationalities(ParseTickerList(c.Param("tickers"))))
}

// Search serves the tickers matching a query.
func (h *Handler) Search(c *gin.Context) {
	c.JSON(http.StatusOK, h.dir.Search(c.Param("query")))
}

// Price serves the current price of a ticker.
func (h *Handler) Price(c *gin.Context) {
	ticker := c.Param("ticker")
	price, tick, err := h.sim.Quote(ticker)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, PriceResponse{Ticker: ticker, Price: price, Tick: tick})
}

// Health reports liveness and the current tick.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:     "ok",
		Tick:       h.sim.CurrentTick(),
		InstanceID: h.instanceID,
		Build:      version.Get(),
	})
}

// ParseTickerList strips optional surrounding brackets and splits on
// commas. Blank entries are dropped.
func ParseTickerList(s string) []string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")

	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, market.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrInvalidArgument):
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
