// Package remote provides the wire-level client for the resource server.
//
// The sync engine never talks HTTP directly; it consumes the narrow Client
// capability interface defined here. The client implements the
// conditional-read protocol (If-None-Match preferred, If-Modified-Since as
// fallback, unconditional read last) and filtered collection searches.
//
// # Response Classification
//
//   - 200 OK            -> StatusOK with body and revision metadata
//   - 304 Not Modified  -> StatusNotModified (cached entry stays untouched)
//   - 404 Not Found     -> StatusNotFound (authoritative delete signal)
//   - 410 Gone          -> StatusGone (authoritative delete signal)
//
// Any other status is an error and leaves the cache unchanged.
//
// # Usage
//
//	client, err := remote.NewClient(cfg)
//	res, err := client.ConditionalRead(ctx, "mappings", "alpha", &remote.Precondition{VersionTag: `W/"3"`})
package remote
