package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	serverAddr   string
	playbackHost string
	proxyPath    string
	displayName  string
)

var rootCmd = &cobra.Command{
	Use:   "streamdj-player",
	Short: "Terminal playback client for streamdj live broadcasts",
}

// Execute runs the CLI. Called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", "localhost:8080", "API server host:port")
	rootCmd.PersistentFlags().StringVar(&playbackHost, "playback-host", "", "absolute playback host, e.g. media.example.com")
	rootCmd.PersistentFlags().StringVar(&proxyPath, "proxy-path", "/hls", "same-origin playback proxy prefix")
	rootCmd.PersistentFlags().StringVar(&displayName, "name", "viewer", "chat display name")
	rootCmd.AddCommand(watchCmd)
}
