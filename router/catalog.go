// Copyright (C) 2025 Tessellate AI (oss@tessellate.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package router

// LanguageDef is one catalog entry: a language id, the file extensions it
// claims and a tie-breaking priority. Higher priority wins when two active
// languages claim the same extension; equal priority on a shared extension
// is a configuration error.
type LanguageDef struct {
	ID         string
	Extensions []string
	Priority   int
}

// Priorities. Superset languages rank below regular ones so the larger
// language only wins an extension no regular language claims.
const (
	PrioritySuperset = 1
	PriorityRegular  = 2
)

// Catalog is the static language table. Extensions include the leading dot.
var Catalog = map[string]LanguageDef{
	"go":         {ID: "go", Extensions: []string{".go"}, Priority: PriorityRegular},
	"python":     {ID: "python", Extensions: []string{".py", ".pyi"}, Priority: PriorityRegular},
	"java":       {ID: "java", Extensions: []string{".java"}, Priority: PriorityRegular},
	"typescript": {ID: "typescript", Extensions: []string{".ts", ".tsx", ".mts", ".cts", ".js", ".jsx", ".mjs", ".cjs"}, Priority: PriorityRegular},
	"vue":        {ID: "vue", Extensions: []string{".vue", ".ts", ".js"}, Priority: PrioritySuperset},
	"csharp":     {ID: "csharp", Extensions: []string{".cs", ".cshtml", ".razor"}, Priority: PriorityRegular},
	"rust":       {ID: "rust", Extensions: []string{".rs"}, Priority: PriorityRegular},
	"ruby":       {ID: "ruby", Extensions: []string{".rb", ".erb"}, Priority: PriorityRegular},
	"cpp":        {ID: "cpp", Extensions: []string{".cpp", ".cc", ".cxx", ".c", ".h", ".hpp", ".hxx"}, Priority: PriorityRegular},
	"kotlin":     {ID: "kotlin", Extensions: []string{".kt", ".kts"}, Priority: PriorityRegular},
	"dart":       {ID: "dart", Extensions: []string{".dart"}, Priority: PriorityRegular},
	"php":        {ID: "php", Extensions: []string{".php"}, Priority: PriorityRegular},
	"swift":      {ID: "swift", Extensions: []string{".swift"}, Priority: PriorityRegular},
	"elixir":     {ID: "elixir", Extensions: []string{".ex", ".exs"}, Priority: PriorityRegular},
	"erlang":     {ID: "erlang", Extensions: []string{".erl", ".hrl", ".escript"}, Priority: PriorityRegular},
	"clojure":    {ID: "clojure", Extensions: []string{".clj", ".cljs", ".cljc", ".edn"}, Priority: PriorityRegular},
	"zig":        {ID: "zig", Extensions: []string{".zig", ".zon"}, Priority: PriorityRegular},
	"lua":        {ID: "lua", Extensions: []string{".lua"}, Priority: PriorityRegular},
	"nix":        {ID: "nix", Extensions: []string{".nix"}, Priority: PriorityRegular},
	"terraform":  {ID: "terraform", Extensions: []string{".tf", ".tfvars"}, Priority: PriorityRegular},
	"bash":       {ID: "bash", Extensions: []string{".sh", ".bash"}, Priority: PriorityRegular},
	"scala":      {ID: "scala", Extensions: []string{".scala", ".sbt"}, Priority: PriorityRegular},
	"haskell":    {ID: "haskell", Extensions: []string{".hs", ".lhs"}, Priority: PriorityRegular},
	"markdown":   {ID: "markdown", Extensions: []string{".md", ".markdown"}, Priority: PriorityRegular},
	"yaml":       {ID: "yaml", Extensions: []string{".yaml", ".yml"}, Priority: PriorityRegular},
	"toml":       {ID: "toml", Extensions: []string{".toml"}, Priority: PriorityRegular},
}
