package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/matthewbaird/erpconsole/internal/config"
)

func newDoctypesCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "doctypes",
		Short: "List the record types the console exposes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			reg, err := loadRegistry(cfg.DoctypesFile)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			slug := color.New(color.FgCyan, color.Bold)
			yes := color.New(color.FgGreen)
			no := color.New(color.FgYellow)
			for _, d := range reg.All() {
				slug.Fprintf(out, "%-20s", d.Slug)
				fmt.Fprintf(out, " %-20s %2d columns  form: ", d.Name, len(d.List.Columns))
				if d.HasForm() {
					yes.Fprint(out, "yes")
				} else {
					no.Fprint(out, "no ")
				}
				if len(d.References) > 0 {
					refs := make([]string, 0, len(d.References))
					for _, r := range d.References {
						refs = append(refs, r.Doctype)
					}
					fmt.Fprintf(out, "  refs: %s", strings.Join(refs, ", "))
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the console version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "console %s\n", Version)
		},
	}
}
