// Package translate is the stateless bridge between external wire formats
// and the shapes the sync engine stores.
//
// It knows three formats: the server's mapping record, the server's alias
// document, and the flat alias object shipped inside packages. Parsing here
// is pure; no I/O, no caching, no knowledge of precedence. Records that
// fail shape validation are rejected with a descriptive error and the
// caller decides whether to skip or abort.
package translate
