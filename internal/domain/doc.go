// Package domain holds the board's core types, repository contracts, and
// the pure rules (authorization, validation) the handlers enforce.
package domain
