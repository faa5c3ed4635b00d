// Package connection implements the live websocket feed.
//
// The Hub is the server side: it subscribes to the router, upgrades HTTP
// requests and fans price and aggregate events out to every connected
// client. Clients may narrow the feed to a set of tickers with subscribe and
// unsubscribe commands. A slow client is disconnected rather than allowed to
// stall the others.
//
// The Client is the dialing side, used by tools that tail the feed.
package connection
