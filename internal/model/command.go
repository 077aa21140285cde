package model

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fatih/structs"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/speakeasy-api/vendorpatch/internal/model/flag"
)

type Command interface {
	Init() (*cobra.Command, error)
}

// CommandGroup only groups subcommands. Running it prints its help.
type CommandGroup struct {
	Usage, Short, Long string
	Aliases            []string
	Commands           []Command
}

func (c CommandGroup) Init() (*cobra.Command, error) {
	group := &cobra.Command{
		Use:     c.Usage,
		Short:   c.Short,
		Long:    c.Long,
		Aliases: c.Aliases,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	for _, sub := range c.Commands {
		cmd, err := sub.Init()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.Usage, err)
		}
		group.AddCommand(cmd)
	}

	return group, nil
}

// ExecutableCommand is a leaf command. F is the struct its flags are decoded
// into; every flag must match the json tag of one of its fields.
type ExecutableCommand[F any] struct {
	Usage, Short, Long string
	Args               cobra.PositionalArgs
	Flags              []flag.Flag
	// PreRun may inspect positional args and set flags from them with cmd.Flags().Set
	PreRun func(cmd *cobra.Command, flags *F) error
	Run    func(ctx context.Context, flags F) error
}

func (c ExecutableCommand[F]) Init() (*cobra.Command, error) {
	if err := c.checkFlags(); err != nil {
		return nil, err
	}

	args := c.Args
	if args == nil {
		args = cobra.NoArgs
	}

	cmd := &cobra.Command{
		Use:   c.Usage,
		Short: c.Short,
		Long:  c.Long,
		Args:  args,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			if c.PreRun == nil {
				return nil
			}
			flags, err := c.GetFlagValues(cmd)
			if err != nil {
				return err
			}
			return c.PreRun(cmd, flags)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags, err := c.GetFlagValues(cmd)
			if err != nil {
				return err
			}
			return c.Run(cmd.Context(), *flags)
		},
	}

	for _, f := range c.Flags {
		if err := f.Init(cmd); err != nil {
			return nil, err
		}
	}

	return cmd, nil
}

func (c ExecutableCommand[F]) checkFlags() error {
	var zero F
	tags := lo.Map(structs.Fields(zero), func(field *structs.Field, _ int) string {
		return field.Tag("json")
	})

	for _, f := range c.Flags {
		if !lo.Contains(tags, f.GetName()) {
			return fmt.Errorf("flag %s is missing from flags type for command %s", f.GetName(), c.Usage)
		}
	}

	return nil
}

// GetFlagValues decodes the parsed flags of cmd into F.
func (c ExecutableCommand[F]) GetFlagValues(cmd *cobra.Command) (*F, error) {
	values := make(map[string]any, len(c.Flags))
	for _, f := range c.Flags {
		v, err := f.Value(cmd.Flags())
		if err != nil {
			return nil, fmt.Errorf("invalid value for --%s: %w", f.GetName(), err)
		}
		values[f.GetName()] = v
	}

	// json round trip maps flag names onto the tagged fields of F
	data, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}

	var flags F
	if err := json.Unmarshal(data, &flags); err != nil {
		return nil, err
	}
	return &flags, nil
}

var _ = []Command{
	&ExecutableCommand[any]{},
	&CommandGroup{},
}
