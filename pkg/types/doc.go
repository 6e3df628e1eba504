// Package types defines the generic entity and transaction model, the
// backend service contract, and the error taxonomy shared by every package
// of the Hera data layer.
package types
