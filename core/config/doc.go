// Package config fills settings structs from environment variables.
//
// Every livesync component declares its tunables as a struct with caarlos0/env
// tags: query.Config (QUERY_CACHE_GRACE, QUERY_CACHE_MAX_IDLE), channel.Config
// (CHANNEL_RECONNECT_INITIAL, CHANNEL_RECONNECT_MAX), postgrest.Config
// (POSTGREST_URL, POSTGREST_TIMEOUT) and so on. Load parses one struct, nested
// structs included, so a binary usually composes them:
//
//	type appConfig struct {
//		Livesync  livesync.Config
//		PostgREST postgrest.Config
//	}
//
//	var cfg appConfig
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//	client, err := livesync.NewFromConfig(provider, transport, fetcher, cfg.Livesync)
//
// A .env file in the working directory is read once, before the first parse.
// Variables already set in the process environment win over it.
//
// Results are cached per struct type. Later Load calls for the same type get
// the first result, even if the environment changed in between. Tests that
// set variables with t.Setenv call Reset first.
//
// MustLoad panics instead of returning the error and suits package main.
package config
