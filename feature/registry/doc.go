// Package registry exposes the read API over the sync engine.
//
// Consumers only ever read the entry store; nothing here writes to any
// backing source. The one POST endpoint triggers a focused refresh, which
// re-reads a key from its real source and reconciles it.
//
// # HTTP Endpoints
//
//   - GET  /registry/mappings              : list all mappings
//   - GET  /registry/mappings/:key         : fetch one mapping
//   - POST /registry/mappings/:key/refresh : focused refresh of one key
//   - GET  /registry/aliases               : merged alias dictionary
//   - GET  /registry/status                : engine health and counts
//   - GET  /registry/packages              : list package entries (filterable)
//   - GET  /registry/packages/resolve      : resolve one entry and fetch its content
package registry
