package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"

	"github.com/Faultbox/datachunk/pkg/convert"
)

var errFilesDiffer = errors.New("files differ")

func (a *app) dumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump <file>",
		Short: "Print every chunk and item of a file as text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := a.dump(cmd.OutOrStdout(), args[0])
			return err
		},
	}
}

func (a *app) dump(w io.Writer, name string) (convert.Stats, error) {
	src, _, keys, err := a.open(name)
	if err != nil {
		return convert.Stats{}, err
	}
	stats, err := convert.Dump(w, src, keys, a.schema(), a.convertOptions())
	if err != nil {
		return stats, fmt.Errorf("dumping %s: %w", name, err)
	}
	return stats, nil
}

func (a *app) diffCmd() *cobra.Command {
	var context int

	cmd := &cobra.Command{
		Use:   "diff <a> <b>",
		Short: "Compare two files chunk by chunk, in either format",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var left, right bytes.Buffer
			if _, err := a.dump(&left, args[0]); err != nil {
				return err
			}
			if _, err := a.dump(&right, args[1]); err != nil {
				return err
			}

			text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
				A:        difflib.SplitLines(left.String()),
				B:        difflib.SplitLines(right.String()),
				FromFile: args[0],
				ToFile:   args[1],
				Context:  context,
			})
			if err != nil {
				return err
			}
			if text == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "identical")
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), text)
			return errFilesDiffer
		},
	}

	cmd.Flags().IntVarP(&context, "context", "U", 3, "lines of context")
	return cmd
}
