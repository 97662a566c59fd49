package feature

import "context"

// Describe lists stored flags with env overrides applied, followed by flags
// that exist only as env overrides.
func Describe(ctx context.Context, store Store, env *EnvProvider) ([]Description, error) {
	flags, err := store.ListFlags(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(flags))
	out := make([]Description, 0, len(flags))
	for _, f := range flags {
		d := Description{Flag: *f, Effective: f.Enabled}
		if env != nil {
			if v, ok := env.Override(f.Name); ok {
				d.Override = &v
				d.Effective = v
			}
		}
		seen[f.Name] = struct{}{}
		out = append(out, d)
	}

	if env == nil {
		return out, nil
	}
	for _, name := range env.OverrideNames() {
		if _, ok := seen[name]; ok {
			continue
		}
		v, _ := env.Override(name)
		out = append(out, Description{
			Flag:      Flag{Name: name, Description: "env override"},
			Effective: v,
			Override:  &v,
		})
	}
	return out, nil
}
