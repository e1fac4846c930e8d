package main

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/BrendaWanda/ControlCalidad/internal/catalog"
	"github.com/BrendaWanda/ControlCalidad/internal/model"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage lines, presentations, control types and parameters",
}

// -- catalog seed --

var catalogSeedCmd = &cobra.Command{
	Use:   "seed <file.yaml>",
	Short: "Create or update the catalog from a YAML seed file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		seed, err := catalog.LoadSeedFile(args[0])
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := catalog.New(st).Apply(ctx, seed)
		if err != nil {
			return eris.Wrap(err, "catalog seed")
		}
		formatSeedResult(cmd.OutOrStdout(), res)
		return nil
	},
}

// -- catalog list --

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the catalog tree",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		trees, err := catalog.New(st).List(ctx)
		if err != nil {
			return err
		}
		formatCatalog(cmd.OutOrStdout(), trees)
		return nil
	},
}

// -- catalog resolve --

var catalogResolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Show effective parameter definitions for a presentation",
	Long:  "With --parameter, resolves one parameter; with --control-type, lists every parameter of that control type.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		presID, _ := cmd.Flags().GetInt64("presentation")
		paramID, _ := cmd.Flags().GetInt64("parameter")
		ctID, _ := cmd.Flags().GetInt64("control-type")
		if presID <= 0 || (paramID <= 0 && ctID <= 0) {
			return eris.New("--presentation and one of --parameter or --control-type are required")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		svc := newService(st)

		var defs []model.EffectiveParameterDefinition
		if paramID > 0 {
			def, err := svc.ResolveEffectiveDefinition(ctx, paramID, presID)
			if err != nil {
				return err
			}
			defs = append(defs, *def)
		} else {
			if defs, err = svc.ListParametersFor(ctx, presID, ctID); err != nil {
				return err
			}
		}
		formatDefinitions(cmd.OutOrStdout(), defs)
		return nil
	},
}

// -- catalog limits --

var catalogLimitsCmd = &cobra.Command{
	Use:   "limits <parameter-id>",
	Short: "Set or clear the base spec limits of a NUMERIC parameter",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		lower, upper := limitFlags(cmd)

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		p, err := catalog.New(st).SetLimits(ctx, id, lower, upper)
		if err != nil {
			return err
		}
		cmd.Printf("%s %s\n", p.Name, limits(p.Lower, p.Upper))
		return nil
	},
}

// -- catalog override --

var catalogOverrideCmd = &cobra.Command{
	Use:   "override <presentation-id> <parameter-id>",
	Short: "Set or clear a presentation-specific override of a parameter",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		presID, err := parseID(args[0])
		if err != nil {
			return err
		}
		paramID, err := parseID(args[1])
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		cat := catalog.New(st)

		if clearOverride, _ := cmd.Flags().GetBool("clear"); clearOverride {
			if err := cat.ClearOverride(ctx, presID, paramID); err != nil {
				return err
			}
			cmd.Println("override cleared")
			return nil
		}

		lower, upper := limitFlags(cmd)
		o := model.ParameterOverride{PresentationID: presID, ParameterID: paramID, Lower: lower, Upper: upper}
		if unit, _ := cmd.Flags().GetString("unit"); cmd.Flags().Changed("unit") {
			o.Unit = &unit
		}
		if kind, _ := cmd.Flags().GetString("kind"); kind != "" {
			k := model.ParameterKind(strings.ToUpper(kind))
			o.Kind = &k
		}
		if _, err := cat.SetOverride(ctx, o); err != nil {
			return err
		}

		def, err := newService(st).ResolveEffectiveDefinition(ctx, paramID, presID)
		if err != nil {
			return err
		}
		formatDefinitions(cmd.OutOrStdout(), []model.EffectiveParameterDefinition{*def})
		return nil
	},
}

// limitFlags reads --lower and --upper. Unset flags mean no bound.
func limitFlags(cmd *cobra.Command) (lower, upper *float64) {
	if cmd.Flags().Changed("lower") {
		v, _ := cmd.Flags().GetFloat64("lower")
		lower = &v
	}
	if cmd.Flags().Changed("upper") {
		v, _ := cmd.Flags().GetFloat64("upper")
		upper = &v
	}
	return lower, upper
}

func init() {
	catalogResolveCmd.Flags().Int64("presentation", 0, "presentation id (required)")
	catalogResolveCmd.Flags().Int64("parameter", 0, "parameter id")
	catalogResolveCmd.Flags().Int64("control-type", 0, "control type id")

	catalogLimitsCmd.Flags().Float64("lower", 0, "lower spec limit (omit for none)")
	catalogLimitsCmd.Flags().Float64("upper", 0, "upper spec limit (omit for none)")

	catalogOverrideCmd.Flags().Float64("lower", 0, "lower spec limit (omit to inherit)")
	catalogOverrideCmd.Flags().Float64("upper", 0, "upper spec limit (omit to inherit)")
	catalogOverrideCmd.Flags().String("unit", "", "unit (omit to inherit)")
	catalogOverrideCmd.Flags().String("kind", "", "NUMERIC or CHECK (omit to inherit)")
	catalogOverrideCmd.Flags().Bool("clear", false, "remove the override")

	catalogCmd.AddCommand(catalogSeedCmd, catalogListCmd, catalogResolveCmd, catalogLimitsCmd, catalogOverrideCmd)
	rootCmd.AddCommand(catalogCmd)
}
