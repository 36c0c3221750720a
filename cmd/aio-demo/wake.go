package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/sanerun/aio"
	"github.com/sanerun/aio/internal/logging"
	"github.com/sanerun/aio/internal/request"
)

var wakeCount int

var wakeCmd = &cobra.Command{
	Use:   "wake",
	Short: "Wake the loop from an external goroutine N times",
	RunE:  runWake,
}

func init() {
	wakeCmd.Flags().IntVar(&wakeCount, "count", 5, "number of external wake-ups to send")
	rootCmd.AddCommand(wakeCmd)
}

func runWake(cmd *cobra.Command, args []string) error {
	loop, err := aio.Create(aio.Options{})
	if err != nil {
		return err
	}
	defer loop.Close()

	received := 0
	wakeReq := request.NewWakeUp(func(r *request.Request, _ request.WakeUpCompletion) {
		received++
		logging.Default().Info("woke up", "n", received)
		if received >= wakeCount {
			loop.Stop()
		}
	})
	if err := loop.SubmitRequests(wakeReq); err != nil {
		return err
	}

	go func() {
		for i := 0; i < wakeCount; i++ {
			time.Sleep(50 * time.Millisecond)
			_ = loop.WakeUpFromExternalThread(wakeReq)
		}
	}()

	return loop.Run()
}
