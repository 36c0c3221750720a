package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/sanerun/aio"
	"github.com/sanerun/aio/internal/logging"
	"github.com/sanerun/aio/internal/request"
)

var (
	timerInterval time.Duration
	timerCount    int
)

var timerCmd = &cobra.Command{
	Use:   "timer",
	Short: "Fire a periodic timer N times, driven by the event loop",
	RunE:  runTimer,
}

func init() {
	timerCmd.Flags().DurationVar(&timerInterval, "interval", 200*time.Millisecond, "delay between ticks")
	timerCmd.Flags().IntVar(&timerCount, "count", 5, "number of ticks before exiting")
	rootCmd.AddCommand(timerCmd)
}

func runTimer(cmd *cobra.Command, args []string) error {
	loop, err := aio.Create(aio.Options{})
	if err != nil {
		return err
	}
	defer loop.Close()

	fired := 0
	var req *request.Request
	req = request.NewTimeout(timerInterval, func(r *request.Request, c request.TimeoutCompletion) {
		fired++
		logging.Default().Info("timer tick", "n", fired, "of", timerCount)
		if fired >= timerCount {
			r.Reactivate(false)
			return
		}
		r.Reactivate(true)
	})
	if err := loop.SubmitRequests(req); err != nil {
		return err
	}
	return loop.Run()
}
