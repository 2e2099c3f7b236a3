package main

import (
	"fmt"

	"github.com/go-git/go-billy/v5/util"
	"github.com/ohler55/ojg"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	"github.com/spf13/cobra"

	"github.com/Faultbox/datachunk/internal/chunkio"
	"github.com/Faultbox/datachunk/pkg/chunk"
	"github.com/Faultbox/datachunk/pkg/convert"
)

func (a *app) queryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "query <file> <jsonpath>",
		Short: "Evaluate a JSONPath expression over the JSON form of a file",
		Example: `  chunktool query Alpine.map '$.chunks[*].label'
  chunktool query Alpine.json '$..[?(@.label == "Script")]._items[0]'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			x, err := jp.ParseString(args[1])
			if err != nil {
				return fmt.Errorf("invalid jsonpath %q: %w", args[1], err)
			}

			tree, err := a.jsonTree(args[0])
			if err != nil {
				return err
			}

			for _, v := range x.Get(tree) {
				fmt.Fprintln(cmd.OutOrStdout(), oj.JSON(v, &ojg.Options{Sort: true}))
			}
			return nil
		},
	}
}

// jsonTree returns the JSON document of name, converting binary input in
// memory.
func (a *app) jsonTree(name string) (any, error) {
	data, err := util.ReadFile(a.fs, a.path(name))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	format, err := chunkio.DetectFormat(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if format == chunkio.FormatJSON {
		return oj.Parse(data)
	}

	keys := chunk.NewNameKeyTable()
	src, err := chunkio.OpenSource(data, format, chunk.WithNameKeys(keys), chunk.WithLogger(a.log))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	w := chunk.NewJSONWriter(chunk.WithNameKeys(keys), chunk.WithLogger(a.log))
	if _, err := convert.Convert(src, w, a.schema(), a.convertOptions()); err != nil {
		return nil, fmt.Errorf("converting %s: %w", name, err)
	}
	return w.Tree(), nil
}
