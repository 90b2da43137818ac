package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/peerline/peerline/internal/chatlog"
	"github.com/peerline/peerline/internal/session"
)

var recvDir string

var recvCmd = &cobra.Command{
	Use:   "recv",
	Short: "wait for one file from a peer and save it",
	Long: `recv registers a fresh endpoint id, prints it and waits for a peer
to connect and send a single file. The file is saved under --dir and
the command exits.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runRecv()
	},
}

func init() {
	recvCmd.Flags().StringVar(&recvDir, "dir", ".", "directory for the received file")
}

func runRecv() {
	log := newLogger()

	cfg := baseConfig()
	cfg.OnTransferProgress = newProgressPrinter("receiving")

	sess := session.New(cfg)
	defer sess.Close()

	if err := sess.Register(context.Background()); err != nil {
		log.Error("Failed to register with relay", "error", err)
		os.Exit(1)
	}

	fmt.Printf("your id: %s\n", sess.ID())
	fmt.Printf("waiting for a peer, run: peerline send %s <path>\n", sess.ID())

	sub, unsub := sess.Log().Subscribe()
	defer unsub()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	for {
		select {
		case <-sigChan:
			return
		case m, ok := <-sub:
			if !ok {
				return
			}
			if m.Kind == chatlog.KindNotice {
				fmt.Printf("* %s\n", m.Content)
				continue
			}
			if m.Kind != chatlog.KindFile || m.Role != chatlog.RoleRemote {
				continue
			}
			path, err := savePayload(recvDir, m.FileName, m.Payload)
			if err != nil {
				log.Error("Failed to save file", "name", m.FileName, "error", err)
				os.Exit(1)
			}
			fmt.Printf("saved %s (%d bytes) to %s\n", m.FileName, m.FileSize, path)
			return
		}
	}
}
