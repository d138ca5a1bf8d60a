// Copyright (C) 2025 Tessellate AI (oss@tessellate.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"context"
	"fmt"

	"github.com/tessellate-ai/solidlsp/lsp"
)

// defaultCommands are the stock launch commands for languages without an
// explicit servers entry. The binaries must already be installed; this
// provider never downloads anything.
var defaultCommands = map[string]ServerConfig{
	"go":         {Command: "gopls"},
	"python":     {Command: "pyright-langserver", Args: []string{"--stdio"}},
	"typescript": {Command: "typescript-language-server", Args: []string{"--stdio"}},
	"rust":       {Command: "rust-analyzer"},
	"csharp":     {Command: "Microsoft.CodeAnalysis.LanguageServer", Args: []string{"--stdio"}},
	"java":       {Command: "jdtls"},
	"ruby":       {Command: "solargraph", Args: []string{"stdio"}},
	"cpp":        {Command: "clangd"},
	"kotlin":     {Command: "kotlin-language-server"},
	"php":        {Command: "intelephense", Args: []string{"--stdio"}},
	"swift":      {Command: "sourcekit-lsp"},
	"elixir":     {Command: "elixir-ls"},
	"clojure":    {Command: "clojure-lsp"},
	"zig":        {Command: "zls"},
	"lua":        {Command: "lua-language-server"},
	"terraform":  {Command: "terraform-ls", Args: []string{"serve"}},
	"bash":       {Command: "bash-language-server", Args: []string{"start"}},
	"yaml":       {Command: "yaml-language-server", Args: []string{"--stdio"}},
	"markdown":   {Command: "marksman", Args: []string{"server"}},
}

// StaticProvider resolves launch specs from configuration and the built-in
// default command table. It implements lsp.DependencyProvider.
//
// Thread Safety:
//
//	Immutable after construction; safe for concurrent use.
type StaticProvider struct {
	rootPath string
	servers  map[string]ServerConfig
}

// NewStaticProvider creates a provider for a project root.
func NewStaticProvider(rootPath string, cfg *Config) *StaticProvider {
	servers := make(map[string]ServerConfig, len(cfg.Servers))
	for lang, sc := range cfg.Servers {
		servers[lang] = sc
	}
	return &StaticProvider{rootPath: rootPath, servers: servers}
}

// ResolveLaunchSpec returns the launch spec for a language. Configured
// entries win over the default table.
//
// Errors:
//
//	lsp.ErrStartupFailed - no command configured or known for the language
func (p *StaticProvider) ResolveLaunchSpec(ctx context.Context, language string) (lsp.LaunchSpec, error) {
	sc, ok := p.servers[language]
	if !ok || sc.Command == "" {
		sc, ok = defaultCommands[language]
		if !ok {
			return lsp.LaunchSpec{}, fmt.Errorf("%w: no server command configured for language %q",
				lsp.ErrStartupFailed, language)
		}
	}

	var initOpts any
	if len(sc.InitializationOptions) > 0 {
		initOpts = sc.InitializationOptions
	}

	return lsp.LaunchSpec{
		Command:               sc.Command,
		Args:                  sc.Args,
		Env:                   sc.Env,
		WorkingDir:            p.rootPath,
		InitializationOptions: initOpts,
	}, nil
}
