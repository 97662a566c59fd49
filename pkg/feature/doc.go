// Package feature provides runtime feature flags.
//
// Providers compose: an EnvProvider applies FEATURE_FLAG_<NAME> overrides on
// top of a CachedProvider, which memoizes a PostgresProvider (the
// feature_flags table) or a MemoryProvider for local runs. Flags can be seeded
// from a YAML file with LoadFile and Seed.
//
//	store := feature.NewPostgresProvider(pool)
//	flags := feature.NewEnvProvider(feature.NewCachedProvider(store, 30*time.Second))
//
//	on, err := flags.IsEnabled(ctx, "multi_channel_notifications")
//	if errors.Is(err, feature.ErrFlagNotFound) {
//	    on = true // caller's default
//	}
package feature
