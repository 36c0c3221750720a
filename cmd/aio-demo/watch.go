package main

import (
	"github.com/spf13/cobra"

	"github.com/sanerun/aio"
	"github.com/sanerun/aio/internal/fswatch"
	"github.com/sanerun/aio/internal/logging"
)

var watchCmd = &cobra.Command{
	Use:   "watch DIR",
	Short: "Watch DIR and log every filesystem event on the loop thread",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	dir := args[0]

	loop, err := aio.Create(aio.Options{})
	if err != nil {
		return err
	}
	defer loop.Close()

	w, err := fswatch.Init(fswatch.EventLoopRunner, loop)
	if err != nil {
		return err
	}
	defer w.Close()

	_, err = w.Watch(dir, func(ev fswatch.Event) {
		logging.Default().Info("fs event", "op", ev.Op.String(), "path", ev.RelPath)
	})
	if err != nil {
		return err
	}

	logging.Default().Info("watching", "dir", dir)
	return loop.Run()
}
