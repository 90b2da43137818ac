package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/peerline/peerline/internal/session"
)

var sendCompat bool

var sendCmd = &cobra.Command{
	Use:   "send ID path/to/file",
	Short: "send a single file to a registered peer",
	Long: `send registers a fresh endpoint id, connects to the given peer,
streams the file to it and exits. The other side runs peerline recv
or an interactive chat.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runSend(args[0], args[1])
	},
}

func init() {
	sendCmd.Flags().BoolVar(&sendCompat, "compat", false, "send the file as a single frame for older peers")
}

func runSend(remote, path string) {
	log := newLogger()

	f, err := os.Open(path)
	if err != nil {
		log.Error("Failed to open file", "path", path, "error", err)
		os.Exit(1)
	}
	defer f.Close()

	cfg := baseConfig()
	cfg.ChunkedTransfers = !sendCompat
	cfg.OnTransferProgress = newProgressPrinter("sending")

	sess := session.New(cfg)
	defer sess.Close()

	ctx := context.Background()
	if err := sess.Register(ctx); err != nil {
		log.Error("Failed to register with relay", "error", err)
		os.Exit(1)
	}
	if err := sess.Connect(ctx, remote); err != nil {
		log.Error("Failed to connect", "peer", remote, "error", err)
		os.Exit(1)
	}
	if err := sess.SendFile(ctx, filepath.Base(path), f); err != nil {
		log.Error("Failed to send file", "path", path, "error", err)
		os.Exit(1)
	}

	flushCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := sess.Flush(flushCtx); err != nil {
		log.Warn("Link did not drain cleanly", "error", err)
	}

	fmt.Println("sent", filepath.Base(path))
}
