package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/sanerun/aio"
	"github.com/sanerun/aio/internal/buffer"
	"github.com/sanerun/aio/internal/logging"
	"github.com/sanerun/aio/internal/reqstream"
)

var pipeFileCmd = &cobra.Command{
	Use:   "pipe-file SRC DST",
	Short: "Copy SRC to DST through a Readable/Writable stream pair",
	Args:  cobra.ExactArgs(2),
	RunE:  runPipeFile,
}

func init() {
	rootCmd.AddCommand(pipeFileCmd)
}

func runPipeFile(cmd *cobra.Command, args []string) error {
	src, dst := args[0], args[1]

	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()
	dstFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer dstFile.Close()

	loop, err := aio.Create(aio.Options{})
	if err != nil {
		return err
	}
	defer loop.Close()

	if err := loop.AssociateExternallyCreatedFileDescriptor(int(srcFile.Fd())); err != nil {
		return err
	}
	if err := loop.AssociateExternallyCreatedFileDescriptor(int(dstFile.Fd())); err != nil {
		return err
	}

	pool := buffer.New(16, 64*1024)

	reader := reqstream.NewFileReader(loop, pool, int(srcFile.Fd()), 4096)
	writer := reqstream.NewFileWriter(loop, pool, int(dstFile.Fd()))

	var copyErr error
	reader.OnData(func(bufferID, size int) {
		// deliver() unrefs bufferID itself right after this callback
		// returns, so WriteBytes must copy data out synchronously here
		// rather than holding onto bufferID past this call.
		data, err := pool.GetReadableData(bufferID)
		if err != nil {
			copyErr = err
			return
		}
		if err := writer.WriteBytes(data, func(err error) {
			if err != nil {
				copyErr = err
			}
		}); err != nil {
			copyErr = err
		}
	})
	reader.OnEnd(func() {
		writer.End()
	})
	reader.OnError(func(err error) {
		copyErr = err
		writer.End()
	})
	writer.OnFinish(func() {
		loop.Stop()
	})
	writer.OnError(func(err error) {
		copyErr = err
		loop.Stop()
	})

	if err := reader.Start(); err != nil {
		return err
	}
	if err := loop.Run(); err != nil {
		return err
	}
	if copyErr != nil {
		return copyErr
	}
	logging.Default().Info("pipe-file complete", "src", src, "dst", dst)
	return nil
}
