// Package config loads typed configuration structs from the process environment.
//
// Fields are declared with caarlos0/env struct tags. A .env file in the working
// directory, when present, is read once (via godotenv) before the first parse;
// real environment variables always win over .env entries.
//
//	var cfg reminder.Config
//	if err := config.Load(&cfg); err != nil {
//	    return err
//	}
//
// Load caches the parsed value per type, so every component asking for the
// same struct sees the same values for the lifetime of the process. Parse
// skips the cache and is what tests should use together with t.Setenv.
package config
