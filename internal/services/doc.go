// Package services defines the [CatalogProvider] and [MediaServer] contracts and implements them over HTTP.
//
// # Catalog Providers
//
// Every remote catalog implements [CatalogProvider] and normalizes its responses to
// [models.CatalogPlaylist] and [models.CatalogTrack] at the boundary. Providers are looked up by
// the identifier stored on each mirrored playlist through a [Registry]; an unknown identifier
// yields [shared.ErrProviderNotFound].
//
// [SpotifyProvider] uses the OAuth2 client credentials flow. The playlist snapshot_id is the change
// token and playlist items are paged 100 at a time.
//
// [DeezerProvider] reads the public API without credentials. The playlist checksum is the change
// token. Deezer reports errors in the body of a 200 response, which are mapped to
// [shared.ErrNotFound] or [shared.ErrAPIRequest].
//
// # Media Server
//
// [JellyfinClient] implements [MediaServer] with an API key sent in the MediaBrowser
// Authorization header. Removal from a playlist goes through playlist entry ids, so it costs an
// extra listing request.
//
// # Error Handling
//
// Non-2xx responses are returned as [*APIError], which matches [shared.ErrAPIRequest] and, for 404s,
// [shared.ErrNotFound] with errors.Is.
//
// All clients wait on a [rate.Limiter] before each request when a rate limit is configured.
package services
