package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/AndyChoi4495/fragments/internal/mediatype"
)

type typeInfo struct {
	Type      string   `json:"type"`
	Extension string   `json:"extension"`
	Formats   []string `json:"formats"`
}

func newTypesCmd(jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List ingestible types and the formats each converts to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var infos []typeInfo
			for _, mt := range mediatype.Ingestible() {
				infos = append(infos, typeInfo{
					Type:      mt,
					Extension: mediatype.ExtensionFor(mt),
					Formats:   mediatype.Formats(mt),
				})
			}

			if *jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(infos)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TYPE\tEXT\tFORMATS")
			for _, info := range infos {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", info.Type, info.Extension, strings.Join(info.Formats, ", "))
			}
			return tw.Flush()
		},
	}
}
