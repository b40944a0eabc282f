package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AndyChoi4495/fragments/internal/convert"
	"github.com/AndyChoi4495/fragments/internal/mediatype"
)

func newConvertCmd() *cobra.Command {
	var (
		to         string
		sourceType string
		outPath    string
	)

	cmd := &cobra.Command{
		Use:   "convert --to <ext> [--type <mime>] <file|->",
		Short: "Convert a file the way GET /v1/fragments/{id}.<ext> would",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, ok := mediatype.ForExtension(strings.TrimPrefix(to, "."))
			if !ok {
				return fmt.Errorf("unknown extension %q", to)
			}

			path := args[0]
			if sourceType == "" {
				if path == "-" {
					return errors.New("--type is required when reading stdin")
				}
				ext := strings.TrimPrefix(filepath.Ext(path), ".")
				mt, ok := mediatype.ForExtension(ext)
				if !ok {
					return fmt.Errorf("cannot infer type of %s, pass --type", path)
				}
				sourceType = mt
			}
			if !mediatype.IsIngestible(sourceType) {
				return fmt.Errorf("unsupported type %q", sourceType)
			}

			payload, err := readInput(cmd, path)
			if err != nil {
				return err
			}
			out, err := convert.Convert(sourceType, payload, target)
			if err != nil {
				return err
			}

			if outPath == "" {
				_, err = cmd.OutOrStdout().Write(out)
				return err
			}
			return os.WriteFile(outPath, out, 0o644)
		},
	}

	cmd.Flags().StringVar(&to, "to", "", "target extension (html, csv, png, ...)")
	cmd.Flags().StringVar(&sourceType, "type", "", "source media type (default: from the file extension)")
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "write to file instead of stdout")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}
