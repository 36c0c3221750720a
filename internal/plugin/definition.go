// Package plugin implements the hot-reloadable plugin registry: a
// scanner that extracts PluginDefinitions from SC_BEGIN_PLUGIN/
// SC_END_PLUGIN comment blocks, a compiler driver that invokes the
// host's C/C++ toolchain, and a registry that loads/reloads the
// resulting dynamic libraries. Grounded on the teacher's plain-struct,
// no-hidden-state modeling style (Request variants, BufferView) rather
// than any particular example's plugin system, since none of the
// example repos ship a comparable dynamic-compile-and-load subsystem.
package plugin

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// PluginDefinition is a parsed SC_BEGIN_PLUGIN/SC_END_PLUGIN comment
// block plus the file layout it was found in.
type PluginDefinition struct {
	Identifier   string
	Name         string
	Version      string
	Description  string
	Category     string
	Dependencies []string
	Build        []string

	MainFile    string // file holding the comment block
	SourceFiles []string
	SourceDir   string
}

const (
	blockBegin = "SC_BEGIN_PLUGIN"
	blockEnd   = "SC_END_PLUGIN"
)

// ScanDirectory recursively walks dir, opening every .c/.cpp/.cc/.cxx file
// looking for a plugin definition block. The file holding the block
// becomes the plugin's main file; every other C/C++ source file in the
// same directory becomes part of SourceFiles.
func ScanDirectory(dir string) ([]PluginDefinition, error) {
	var defs []PluginDefinition
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !isSourceFile(path) {
			return nil
		}
		def, found, perr := parseFile(path)
		if perr != nil {
			return perr
		}
		if !found {
			return nil
		}
		def.SourceDir = filepath.Dir(path)
		def.SourceFiles = siblingSources(def.SourceDir, path)
		defs = append(defs, def)
		return nil
	})
	return defs, err
}

func isSourceFile(path string) bool {
	switch filepath.Ext(path) {
	case ".c", ".cc", ".cpp", ".cxx":
		return true
	default:
		return false
	}
}

func siblingSources(dir, mainFile string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return []string{mainFile}
	}
	files := []string{mainFile}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		p := filepath.Join(dir, e.Name())
		if p == mainFile || !isSourceFile(p) {
			continue
		}
		files = append(files, p)
	}
	return files
}

// parseFile scans path line by line for a blockBegin..blockEnd comment
// region and parses its Key: value pairs. The parser is line-oriented
// and tolerant of unknown keys.
func parseFile(path string) (PluginDefinition, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return PluginDefinition{}, false, err
	}
	defer f.Close()

	def := PluginDefinition{MainFile: path}
	inBlock := false
	found := false

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		line = strings.TrimPrefix(line, "//")
		line = strings.TrimPrefix(line, "*")
		line = strings.TrimSpace(line)

		switch {
		case strings.Contains(line, blockBegin):
			inBlock, found = true, true
			continue
		case strings.Contains(line, blockEnd):
			inBlock = false
			continue
		}
		if !inBlock {
			continue
		}
		key, value, ok := splitKV(line)
		if !ok {
			continue
		}
		applyKV(&def, key, value)
	}
	if err := scanner.Err(); err != nil {
		return def, found, err
	}
	if def.Identifier == "" {
		def.Identifier = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return def, found, nil
}

func splitKV(line string) (key, value string, ok bool) {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+1:]), true
}

func applyKV(def *PluginDefinition, key, value string) {
	switch strings.ToLower(key) {
	case "identifier":
		def.Identifier = value
	case "name":
		def.Name = value
	case "version":
		def.Version = value
	case "description":
		def.Description = value
	case "category":
		def.Category = value
	case "dependencies":
		def.Dependencies = splitCSV(value)
	case "build":
		def.Build = splitCSV(value)
	}
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
