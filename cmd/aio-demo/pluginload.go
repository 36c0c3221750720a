package main

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/spf13/cobra"

	"github.com/sanerun/aio/internal/logging"
	"github.com/sanerun/aio/internal/plugin"
)

var pluginCmd = &cobra.Command{
	Use:   "plugin",
	Short: "Plugin compile/load operations",
}

var pluginLoadCmd = &cobra.Command{
	Use:   "load DIR IDENTIFIER",
	Short: "Scan DIR for a plugin definition, compile it, and load it",
	Args:  cobra.ExactArgs(2),
	RunE:  runPluginLoad,
}

func init() {
	pluginCmd.AddCommand(pluginLoadCmd)
	rootCmd.AddCommand(pluginCmd)
}

func runPluginLoad(cmd *cobra.Command, args []string) error {
	dir, identifier := args[0], args[1]

	defs, err := plugin.ScanDirectory(dir)
	if err != nil {
		return err
	}
	var def *plugin.PluginDefinition
	for i := range defs {
		if defs[i].Identifier == identifier {
			def = &defs[i]
			break
		}
	}
	if def == nil {
		return fmt.Errorf("no plugin definition %q found under %s", identifier, dir)
	}

	env := plugin.EnvironmentFromOS()
	c, err := plugin.FindBestCompiler(env)
	if err != nil {
		return err
	}
	sr, err := plugin.FindBestSysroot(c)
	if err != nil {
		return err
	}

	intermediates, err := os.MkdirTemp("", "aio-demo-plugin-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(intermediates)

	registry := plugin.NewRegistry(intermediates)
	lib, err := registry.Load(*def, c, sr, unsafe.Pointer(nil), plugin.Fresh)
	if err != nil {
		return err
	}

	logging.Default().Info("plugin loaded",
		"identifier", def.Identifier,
		"name", def.Name,
		"version", def.Version,
		"loaded_at", lib.LoadedAt,
	)
	return nil
}
