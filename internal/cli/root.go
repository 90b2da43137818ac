// Package cli implements the peerline command line interface.
package cli

import (
	"log"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/peerline/peerline/internal/logger"
	"github.com/peerline/peerline/internal/session"
	"github.com/peerline/peerline/internal/transport"
)

var (
	brokerURL   string
	stunServers []string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:  `peerline`,
	Long: `peerline is a peer to peer chat, file transfer and calling tool`,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&brokerURL, "broker", session.DefaultConfig().BrokerURL, "websocket URL of the rendezvous relay")
	rootCmd.PersistentFlags().StringSliceVar(&stunServers, "stun", transport.DefaultConfig().STUNServers, "STUN servers used for NAT traversal")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(recvCmd)
	rootCmd.AddCommand(versionCmd)
}

func newLogger() *slog.Logger {
	if verbose {
		return logger.NewLoggerWithLevel(slog.LevelDebug)
	}
	return logger.NewLogger()
}

// baseConfig translates the persistent flags into a session config.
func baseConfig() session.Config {
	cfg := session.DefaultConfig()
	cfg.BrokerURL = brokerURL
	cfg.STUNServers = stunServers
	cfg.Logger = newLogger()
	return cfg
}
