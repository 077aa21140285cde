// Package flag declares the typed command line flags an ExecutableCommand is
// built from. Each flag registers itself on a cobra command and reads its
// value back from the parsed flag set.
package flag

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type Flag interface {
	Init(cmd *cobra.Command) error
	GetName() string
	// Value returns the parsed value of the flag in fs.
	Value(fs *pflag.FlagSet) (any, error)
}

// StringFlag is a free-form string flag.
type StringFlag struct {
	Name, Shorthand, Description string
	Required                     bool
	DefaultValue                 string
}

func (f StringFlag) Init(cmd *cobra.Command) error {
	return register(cmd, f.Name, f.Required, func(fs *pflag.FlagSet) {
		fs.StringP(f.Name, f.Shorthand, f.DefaultValue, f.Description)
	})
}

func (f StringFlag) GetName() string { return f.Name }

func (f StringFlag) Value(fs *pflag.FlagSet) (any, error) {
	return fs.GetString(f.Name)
}

type BooleanFlag struct {
	Name, Shorthand, Description string
	Required                     bool
	DefaultValue                 bool
}

func (f BooleanFlag) Init(cmd *cobra.Command) error {
	return register(cmd, f.Name, f.Required, func(fs *pflag.FlagSet) {
		fs.BoolP(f.Name, f.Shorthand, f.DefaultValue, f.Description)
	})
}

func (f BooleanFlag) GetName() string { return f.Name }

func (f BooleanFlag) Value(fs *pflag.FlagSet) (any, error) {
	return fs.GetBool(f.Name)
}

// StringSliceFlag accepts repeated or comma separated values.
type StringSliceFlag struct {
	Name, Shorthand, Description string
	Required                     bool
	DefaultValue                 []string
}

func (f StringSliceFlag) Init(cmd *cobra.Command) error {
	return register(cmd, f.Name, f.Required, func(fs *pflag.FlagSet) {
		fs.StringSliceP(f.Name, f.Shorthand, f.DefaultValue, f.Description+" (comma separated)")
	})
}

func (f StringSliceFlag) GetName() string { return f.Name }

func (f StringSliceFlag) Value(fs *pflag.FlagSet) (any, error) {
	values, err := fs.GetStringSlice(f.Name)
	if err != nil {
		return nil, err
	}
	if values == nil {
		values = []string{}
	}
	return values, nil
}

// EnumFlag is a string flag restricted to AllowedValues.
type EnumFlag struct {
	Name, Shorthand, Description string
	Required                     bool
	DefaultValue                 string
	AllowedValues                []string
}

func (f EnumFlag) Init(cmd *cobra.Command) error {
	if len(f.AllowedValues) == 0 {
		return fmt.Errorf("enum flag %s has no allowed values", f.Name)
	}
	if !f.Required && !slices.Contains(f.AllowedValues, f.DefaultValue) {
		return fmt.Errorf("default %q of enum flag %s is not an allowed value", f.DefaultValue, f.Name)
	}

	return register(cmd, f.Name, f.Required, func(fs *pflag.FlagSet) {
		usage := fmt.Sprintf("%s (one of: %s)", f.Description, f.options())
		fs.StringP(f.Name, f.Shorthand, f.DefaultValue, usage)
	})
}

func (f EnumFlag) GetName() string { return f.Name }

func (f EnumFlag) Value(fs *pflag.FlagSet) (any, error) {
	v, err := fs.GetString(f.Name)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(f.AllowedValues, v) {
		return nil, fmt.Errorf("%q is not one of %s", v, f.options())
	}
	return v, nil
}

func (f EnumFlag) options() string {
	return strings.Join(f.AllowedValues, ", ")
}

func register(cmd *cobra.Command, name string, required bool, define func(fs *pflag.FlagSet)) error {
	if name == "" {
		return fmt.Errorf("flag on command %s has no name", cmd.Name())
	}
	if cmd.Flags().Lookup(name) != nil {
		return fmt.Errorf("flag %s is declared twice on command %s", name, cmd.Name())
	}

	define(cmd.Flags())
	if !required {
		return nil
	}
	return cmd.MarkFlagRequired(name)
}

var _ = []Flag{
	StringFlag{},
	BooleanFlag{},
	StringSliceFlag{},
	EnumFlag{},
}
