package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Faultbox/datachunk/pkg/chunk"
)

type tocHolder interface {
	TOC() *chunk.TableOfContents
}

func (a *app) infoCmd() *cobra.Command {
	var showTOC bool

	cmd := &cobra.Command{
		Use:   "info <file>",
		Short: "Show the format, table of contents and top-level chunks of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, format, _, err := a.open(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "File:    %s\n", args[0])
			fmt.Fprintf(out, "Format:  %s\n", format)
			if h, ok := src.(tocHolder); ok {
				toc := h.TOC()
				fmt.Fprintf(out, "Names:   %d\n", toc.Len())
				if showTOC {
					for _, e := range toc.Entries() {
						fmt.Fprintf(out, "  %5d  %s\n", e.ID, e.Name)
					}
				}
			}

			fmt.Fprintln(out, "Chunks:")
			n := 0
			for {
				label, version, err := src.OpenChunk()
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					return fmt.Errorf("chunk %d: %w", n, err)
				}
				fmt.Fprintf(out, "  %-28s v%-3d %8d\n", label, version, src.ChunkDataSize())
				if err := src.CloseChunk(); err != nil {
					return err
				}
				n++
			}
			fmt.Fprintf(out, "Total:   %d top-level chunks\n", n)
			return nil
		},
	}

	cmd.Flags().BoolVar(&showTOC, "toc", false, "list every table of contents entry")
	return cmd
}
