// Package store declares the persistence interface for runs and extracted
// products. Provider implementations live in subpackages; this package must
// not import database drivers or concrete clients.
package store
