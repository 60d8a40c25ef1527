// Command volume-listener emulates the companion app's hardware bridge on a
// laptop: volume up/down cycles the candidate replies and muting selects the
// highlighted one.
//
// Usage:
//
//	volume-listener --user alice@example.com --server http://localhost:8080
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var (
	userID   string
	server   string
	token    string
	interval time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "volume-listener",
	Short: "Drive reply selection from the host volume control",
	Long: `volume-listener polls the macOS master volume and posts android-control
actions for a user's live session.

  VOLUME UP/DOWN  cycle the candidate replies
  MUTE            select the highlighted reply`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if userID == "" {
			return fmt.Errorf("--user is required")
		}
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		c := &controlClient{
			url:   server + "/android-control",
			user:  userID,
			token: token,
			http:  &http.Client{Timeout: 5 * time.Second},
		}
		log.Printf("monitoring volume for user %s (server %s)", userID, server)
		return run(ctx, osascriptVolume, c.send, interval)
	},
}

func init() {
	rootCmd.Flags().StringVar(&userID, "user", "", "user id whose session is controlled")
	rootCmd.Flags().StringVar(&server, "server", "http://localhost:8080", "hudlink server base URL")
	rootCmd.Flags().StringVar(&token, "token", os.Getenv("CONTROL_TOKEN"), "control token, if the server requires one")
	rootCmd.Flags().DurationVar(&interval, "interval", 300*time.Millisecond, "volume poll interval")
}

func main() {
	log.SetFlags(log.Ltime)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
