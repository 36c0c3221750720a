package plugin

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInterfaceHashIsStable(t *testing.T) {
	require.Equal(t, InterfaceHash("demo.Echo"), InterfaceHash("demo.Echo"))
	require.NotEqual(t, InterfaceHash("demo.Echo"), InterfaceHash("demo.Other"))
}

func TestGetPluginsToReloadBecauseOfMatchesSourceFiles(t *testing.T) {
	r := NewRegistry(t.TempDir())
	r.libs["demo.echo"] = &DynamicLibrary{
		Definition: PluginDefinition{
			Identifier:  "demo.echo",
			SourceFiles: []string{"/src/echo.c", "/src/helper.c"},
		},
	}

	require.Equal(t, []string{"demo.echo"}, r.GetPluginsToReloadBecauseOf("/src/helper.c"))
	require.Empty(t, r.GetPluginsToReloadBecauseOf("/src/unrelated.c"))
}

func TestUnloadUnknownIdentifierIsNoop(t *testing.T) {
	r := NewRegistry(t.TempDir())
	require.NoError(t, r.Unload("nope"))
}

func TestQueryInterfaceUnknownIdentifier(t *testing.T) {
	r := NewRegistry(t.TempDir())
	_, err := r.QueryInterface("nope", "demo.Echo")
	require.Error(t, err)
}
