package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"brewcore/internal/core"
	"brewcore/pkg/domain"
)

// recipeArgs returns the recipes a command should act on: explicit args, else
// the recipes of the loaded fixture, else every stored recipe.
func recipeArgs(svc *core.Service, args, loaded []string) []string {
	if len(args) > 0 {
		return args
	}
	if len(loaded) > 0 {
		return loaded
	}
	var ids []string
	for _, r := range svc.Store().ListRecipes() {
		ids = append(ids, r.ID)
	}
	return ids
}

func newSheetCommand(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "sheet [recipe-id...]",
		Short: "Print the brew sheet of recipes",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, loaded, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			for _, id := range recipeArgs(svc, args, loaded) {
				sheet, err := svc.Sheet(cmd.Context(), id)
				if err != nil {
					return err
				}
				switch format {
				case "json":
					enc := json.NewEncoder(a.stdout)
					enc.SetIndent("", "  ")
					if err := enc.Encode(sheet); err != nil {
						return err
					}
				case "table":
					if err := writeSheet(a.stdout, sheet); err != nil {
						return err
					}
				default:
					return fmt.Errorf("unknown format %q", format)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", "table", "output format: table|json")
	return cmd
}

func writeSheet(w io.Writer, sheet core.Sheet) error {
	fmt.Fprintf(w, "%s (%s)\n", sheet.Name, sheet.RecipeID)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, f := range sheet.Fields {
		fmt.Fprintf(tw, "  %s\t%s\n", f.Name, sheetValue(f))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w)
	return err
}

func sheetValue(f core.SheetField) string {
	switch {
	case f.Error != "":
		return "error: " + f.Error
	case f.Undefined != "":
		return "-"
	case f.Value != nil:
		return strconv.FormatFloat(*f.Value, 'f', 3, 64)
	default:
		return "[" + strings.Join(f.Entities, " ") + "]"
	}
}

func newGetCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <entity> <id> <field>",
		Short: "Print one field of a record",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			v, err := svc.Get(cmd.Context(), domain.EntityType(args[0]), args[1], args[2])
			if err != nil {
				return err
			}
			if f, ok := v.Float(); ok {
				_, err = fmt.Fprintln(a.stdout, strconv.FormatFloat(f, 'g', -1, 64))
				return err
			}
			if !v.Defined() {
				return fmt.Errorf("%s is undefined: %v", args[2], v.Reason())
			}
			ids := make([]string, 0, len(v.Entities()))
			for _, e := range v.Entities() {
				ids = append(ids, e.Ref().ID)
			}
			_, err = fmt.Fprintln(a.stdout, strings.Join(ids, "\n"))
			return err
		},
	}
}

func newExportCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export [recipe-id...]",
		Short: "Write brew sheets as JSON to the configured blob store",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, loaded, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			store, err := core.OpenBlob(cmd.Context(), a.cfg.Blob)
			if err != nil {
				return err
			}
			for _, id := range recipeArgs(svc, args, loaded) {
				info, err := svc.ExportSheet(cmd.Context(), store, id)
				if err != nil {
					return err
				}
				where := info.Key
				if info.URL != "" {
					where = info.URL
				}
				fmt.Fprintf(a.stdout, "%s\t%s\n", id, where)
			}
			return nil
		},
	}
}

func newGraphCommand(a *app) *cobra.Command {
	var entity string
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "List derived fields in evaluation order with their dependencies",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, _, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			g := svc.Graph()
			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "LEVEL\tFIELD\tDEPENDS ON")
			for _, key := range g.Order() {
				typ, name, _ := strings.Cut(key, ".")
				if entity != "" && typ != entity {
					continue
				}
				level, _ := g.Level(typ, name)
				fmt.Fprintf(tw, "%d\t%s\t%s\n", level, key, strings.Join(g.Dependencies(typ, name), ", "))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&entity, "entity", "e", "", "only list fields of this entity type")
	return cmd
}

func newLoadCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "load <file.yaml>",
		Short: "Import a YAML recipe file into the configured store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.fixturePath = args[0]
			_, ids, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(a.stdout, id)
			}
			return nil
		},
	}
}
