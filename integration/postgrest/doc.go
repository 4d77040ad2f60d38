// Package postgrest is a livesync.Fetcher that reads rows over a PostgREST
// compatible HTTP API.
//
// A query key maps onto one GET request:
//
//	GET {URL}/rest/v1/{table}?select={select}&{col}={op}.{value}&order=...&limit=...&offset=...
//
// Requests carry the project key in the apikey header and the session
// access token as a bearer token, so row-level security applies to the
// signed-in subject.
//
// Transport errors and 5xx responses are retried with exponential backoff up
// to Config.MaxAttempts. Any 4xx response is returned at once.
//
// Usage:
//
//	f, err := postgrest.New(postgrest.Config{URL: "https://db.example.com", APIKey: key})
//	client, err := livesync.New(provider, transport, f)
package postgrest
