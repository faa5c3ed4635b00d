package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/VictorJustesen/Stocksimulatedapi/internal/model"
)

// GetHistoricalData fetches the most recent count aggregates of ticker at
// granularity g, oldest first.
func (c *Client) GetHistoricalData(ctx context.Context, ticker string, g model.Granularity, count int) ([]model.AggregateRecord, error) {
	path := fmt.Sprintf("/stock/%s/%s/%s", url.PathEscape(ticker), g.String(), strconv.Itoa(count))

	var triples []Triple
	if err := c.getJSON(ctx, path, &triples); err != nil {
		return nil, fmt.Errorf("get historical data %s: %w", ticker, err)
	}
	return ToRecords(g, triples), nil
}

// GetGroupTickers fetches the tickers of a group.
func (c *Client) GetGroupTickers(ctx context.Context, group string) ([]string, error) {
	var tickers []string
	if err := c.getJSON(ctx, "/group/tickers/"+url.PathEscape(group), &tickers); err != nil {
		return nil, fmt.Errorf("get group tickers %s: %w", group, err)
	}
	return tickers, nil
}

// GetNationalities fetches ticker -> nationality. Unknown tickers are
// absent from the result.
func (c *Client) GetNationalities(ctx context.Context, tickers []string) (map[string]string, error) {
	list := "[" + strings.Join(tickers, ",") + "]"

	out := map[string]string{}
	if err := c.getJSON(ctx, "/stock/nationalities/"+url.PathEscape(list), &out); err != nil {
		return nil, fmt.Errorf("get nationalities: %w", err)
	}
	return out, nil
}

// SearchStocks fetches the tickers matching query.
func (c *Client) SearchStocks(ctx context.Context, query string) ([]string, error) {
	var tickers []string
	if err := c.getJSON(ctx, "/search/stocks/"+url.PathEscape(query), &tickers); err != nil {
		return nil, fmt.Errorf("search stocks %q: %w", query, err)
	}
	return tickers, nil
}

// GetPrice fetches the current price of ticker.
func (c *Client) GetPrice(ctx context.Context, ticker string) (*PriceResponse, error) {
	var resp PriceResponse
	if err := c.getJSON(ctx, "/stock/"+url.PathEscape(ticker)+"/price", &resp); err != nil {
		return nil, fmt.Errorf("get price %s: %w", ticker, err)
	}
	return &resp, nil
}

// GetHealth fetches the server health.
func (c *Client) GetHealth(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.getJSON(ctx, "/health", &resp); err != nil {
		return nil, fmt.Errorf("get health: %w", err)
	}
	return &resp, nil
}
