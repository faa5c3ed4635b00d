// Package market holds the instrument registry: the static set of simulated
// stocks, their groups and their live price state.
//
// The registry is built once at startup and passed explicitly to the
// components that need it. Membership never changes after construction;
// only prices and price history do.
package market
