// Copyright (C) 2025 Tessellate AI (oss@tessellate.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tessellate-ai/solidlsp"
	"github.com/tessellate-ai/solidlsp/symbol"
)

var (
	overviewCmd = &cobra.Command{
		Use:   "overview [file]",
		Short: "Show the symbol tree of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServer(cmd.Context(), func(ctx context.Context, s *solidlsp.SolidLanguageServer) error {
				ov, err := s.GetOverview(ctx, args[0], depth)
				if err != nil {
					return err
				}
				if jsonOut {
					return printJSON(ov)
				}
				for _, root := range ov.Symbols {
					printSymbolTree(root, 0)
				}
				return nil
			})
		},
	}

	findCmd = &cobra.Command{
		Use:   "find [file] [name-path]",
		Short: "Find symbols in a file by name path",
		Long: "Find symbols by name path. A name path is the chain of enclosing\n" +
			"symbol names joined by /, with overloads disambiguated by a 1-based\n" +
			"occurrence index: Handle matches the first Handle, Handle[2] the\n" +
			"second, /Service/Handle only a top-level Service's method.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServer(cmd.Context(), func(ctx context.Context, s *solidlsp.SolidLanguageServer) error {
				found, err := s.FindSymbol(ctx, args[0], args[1], substring)
				if err != nil {
					return err
				}
				if jsonOut {
					return printJSON(found)
				}
				if len(found) == 0 {
					fmt.Println("no symbols match")
					return nil
				}
				for _, sym := range found {
					fmt.Printf("%s\t%s\t%s:%d\n",
						sym.NamePath, sym.Kind, args[0], sym.SelectionRange.Start.Line+1)
				}
				return nil
			})
		},
	}

	referencesCmd = &cobra.Command{
		Use:   "references [file] [name-path]",
		Short: "List all usage sites of a symbol",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServer(cmd.Context(), func(ctx context.Context, s *solidlsp.SolidLanguageServer) error {
				refs, err := s.FindReferences(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				if jsonOut {
					return printJSON(refs)
				}
				for _, ref := range refs {
					fmt.Printf("%s:%d:%d\n",
						ref.RelativePath, ref.Range.Start.Line+1, ref.Range.Start.Character+1)
				}
				return nil
			})
		},
	}

	renameCmd = &cobra.Command{
		Use:   "rename [file] [name-path] [new-name]",
		Short: "Rename a symbol across the project",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServer(cmd.Context(), func(ctx context.Context, s *solidlsp.SolidLanguageServer) error {
				result, err := s.Rename(ctx, args[0], args[1], args[2])
				if err != nil {
					return err
				}
				if jsonOut {
					return printJSON(result)
				}
				fmt.Printf("applied %d edits across %d files\n", result.EditCount, len(result.FilesChanged))
				for _, file := range result.FilesChanged {
					fmt.Println("  " + file)
				}
				return nil
			})
		},
	}
)

// withServer builds the orchestrator for the configured root, runs op and
// shuts everything down.
func withServer(ctx context.Context, op func(context.Context, *solidlsp.SolidLanguageServer) error) error {
	s, err := solidlsp.New(ctx, rootPath)
	if err != nil {
		return err
	}
	defer func() { _ = s.Shutdown(context.Background()) }()
	return op(ctx, s)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSymbolTree(sym *symbol.Symbol, indent int) {
	fmt.Printf("%s%s  [%s] line %d\n",
		strings.Repeat("  ", indent), sym.Name, sym.Kind, sym.SelectionRange.Start.Line+1)
	for _, child := range sym.Children {
		printSymbolTree(child, indent+1)
	}
}
