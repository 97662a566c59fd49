package feature

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

type flagFile struct {
	Flags []Flag `yaml:"flags"`
}

// LoadFile reads flag definitions from a YAML file:
//
//	flags:
//	  - name: multi_channel_notifications
//	    enabled: true
//	    description: fan reminders out to every channel
func LoadFile(path string) ([]Flag, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Join(ErrLoadFile, err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads a YAML flag list. Every flag must have a name.
func Decode(r io.Reader) ([]Flag, error) {
	var ff flagFile
	if err := yaml.NewDecoder(r).Decode(&ff); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Join(ErrLoadFile, err)
	}
	for i, fl := range ff.Flags {
		if fl.Name == "" {
			return nil, errors.Join(ErrLoadFile, fmt.Errorf("flag #%d: %w", i, ErrInvalidFlag))
		}
	}
	return ff.Flags, nil
}

// Seed writes flags into store.
func Seed(ctx context.Context, store Store, flags []Flag) error {
	for _, f := range flags {
		if err := store.SetFlag(ctx, f); err != nil {
			return err
		}
	}
	return nil
}
