// Package packages reads the immutable, pre-indexed package repository held
// in object storage.
//
// A package version lives under <package>/<version>/ in the bucket, with an
// index.json describing its entries (filename, key, type). The repository
// never changes after publication, so indices are scanned once per process
// and served from memory afterwards.
//
// # Components
//
//   - Explorer: Lookup (filtered listing), Resolve (exactly-one semantics),
//     Fetch (entry content).
//   - AliasSource: flattens alias-type entries from all packages into the
//     engine's built-in alias view, first occurrence winning on duplicates.
//
// Package identity and in-package filenames are used verbatim as metadata;
// nothing here re-derives them.
package packages
