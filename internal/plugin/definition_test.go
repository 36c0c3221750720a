package plugin

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScanDirectoryParsesBlock(t *testing.T) {
	dir := t.TempDir()
	main := filepath.Join(dir, "echo.c")
	require.NoError(t, os.WriteFile(main, []byte(`
// SC_BEGIN_PLUGIN
// Identifier: demo.echo
// Name: Echo Plugin
// Version: 1.0.0
// Description: echoes its input
// Category: demo
// Dependencies: demo.base
// SC_END_PLUGIN
#include <stdint.h>
int init(void *out) { return 1; }
`), 0o644))
	helper := filepath.Join(dir, "helper.c")
	require.NoError(t, os.WriteFile(helper, []byte("void helper(void) {}\n"), 0o644))

	defs, err := ScanDirectory(dir)
	require.NoError(t, err)
	require.Len(t, defs, 1)

	def := defs[0]
	require.Equal(t, "demo.echo", def.Identifier)
	require.Equal(t, "Echo Plugin", def.Name)
	require.Equal(t, "1.0.0", def.Version)
	require.Equal(t, []string{"demo.base"}, def.Dependencies)
	require.ElementsMatch(t, []string{main, helper}, def.SourceFiles)
}

func TestParseFileDefaultsIdentifierToFileStem(t *testing.T) {
	dir := t.TempDir()
	main := filepath.Join(dir, "noident.c")
	require.NoError(t, os.WriteFile(main, []byte("// SC_BEGIN_PLUGIN\n// Name: No Identifier\n// SC_END_PLUGIN\n"), 0o644))

	def, found, err := parseFile(main)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "noident", def.Identifier)
}

func TestScanDirectorySkipsFilesWithoutBlock(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plain.c"), []byte("int main(void) { return 0; }\n"), 0o644))

	defs, err := ScanDirectory(dir)
	require.NoError(t, err)
	require.Empty(t, defs)
}
