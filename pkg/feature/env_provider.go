package feature

import (
	"context"
	"os"
	"slices"
	"strings"
)

var truthy = []string{"1", "true", "yes", "on"}

// EnvProvider lets environment variables override another provider.
// FEATURE_FLAG_MULTI_CHANNEL_NOTIFICATIONS=off forces multi_channel_notifications
// to false no matter what the wrapped provider says. Any value outside
// 1/true/yes/on counts as false.
type EnvProvider struct {
	next    Provider
	prefix  string
	lookup  func(string) (string, bool)
	environ func() []string
}

// EnvOption configures an EnvProvider.
type EnvOption func(*EnvProvider)

// WithEnvPrefix sets the variable prefix, FEATURE_FLAG_ by default.
func WithEnvPrefix(prefix string) EnvOption {
	return func(p *EnvProvider) {
		if prefix != "" {
			p.prefix = prefix
		}
	}
}

// WithEnvLookup replaces os.LookupEnv and os.Environ, mostly for tests.
func WithEnvLookup(vars map[string]string) EnvOption {
	return func(p *EnvProvider) {
		p.lookup = func(k string) (string, bool) {
			v, ok := vars[k]
			return v, ok
		}
		p.environ = func() []string {
			out := make([]string, 0, len(vars))
			for k, v := range vars {
				out = append(out, k+"="+v)
			}
			return out
		}
	}
}

// NewEnvProvider wraps next. A nil next makes env vars the only source.
func NewEnvProvider(next Provider, opts ...EnvOption) *EnvProvider {
	p := &EnvProvider{
		next:    next,
		prefix:  "FEATURE_FLAG_",
		lookup:  os.LookupEnv,
		environ: os.Environ,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// IsEnabled returns the environment override when one is set and falls
// through to the wrapped provider otherwise.
func (p *EnvProvider) IsEnabled(ctx context.Context, flagName string) (bool, error) {
	if v, ok := p.Override(flagName); ok {
		return v, nil
	}
	if p.next == nil {
		return false, ErrFlagNotFound
	}
	return p.next.IsEnabled(ctx, flagName)
}

// Override reports the env value for flagName, if one is set.
func (p *EnvProvider) Override(flagName string) (value, ok bool) {
	raw, ok := p.lookup(p.prefix + envKey(flagName))
	if !ok {
		return false, false
	}
	return slices.Contains(truthy, strings.ToLower(strings.TrimSpace(raw))), true
}

// OverrideNames lists flag names that only exist as env overrides, lowercased.
func (p *EnvProvider) OverrideNames() []string {
	var names []string
	for _, kv := range p.environ() {
		k, _, _ := strings.Cut(kv, "=")
		if name, ok := strings.CutPrefix(k, p.prefix); ok && name != "" {
			names = append(names, strings.ToLower(name))
		}
	}
	slices.Sort(names)
	return names
}

func envKey(flagName string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, flagName)
}
