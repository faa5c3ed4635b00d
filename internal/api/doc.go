// Package api provides a REST client for the simulator's HTTP API.
//
// It speaks the legacy route shapes (aggregates as {first,second,third}
// triples, "[A,B]" ticker lists) and converts them to model types.
// Requests that fail with 5xx or 429 are retried with jittered
// exponential backoff.
package api
