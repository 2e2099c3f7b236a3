package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Faultbox/datachunk/pkg/scripts"
)

func (a *app) scriptsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scripts <file>",
		Short: "Summarize the scripts of a map file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, _, _, err := a.open(args[0])
			if err != nil {
				return err
			}
			sum, err := scripts.Summarize(src)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Players: %d [%s]\n", len(sum.Players), strings.Join(sum.Players, ", "))
			fmt.Fprintf(out, "Lists:   %d\n", sum.Lists)
			fmt.Fprintf(out, "Groups:  %d [%s]\n", len(sum.Groups), strings.Join(sum.Groups, ", "))
			fmt.Fprintf(out, "Teams:   %d\n", sum.Teams)
			fmt.Fprintf(out, "Scripts: %d\n", len(sum.Scripts))
			for _, s := range sum.Scripts {
				state := "off"
				if s.Active {
					state = "on"
				}
				group := s.Group
				if group == "" {
					group = "-"
				}
				fmt.Fprintf(out, "  %-24s list %d  group %-16s %-3s  if %d  then %d  else %d  every %ds\n",
					s.Name, s.List, group, state, s.Conditions, s.Actions, s.FalseActions, s.DelaySeconds)
			}
			return nil
		},
	}
}
