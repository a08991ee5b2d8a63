package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile     string
	outputDir   string
	maxParallel int
)

var rootCmd = &cobra.Command{
	Use:   "stemfetch <recording-id> <access-key>",
	Short: "Download every track of a remote multi-track recording",
	Long: `stemfetch connects to a remote recording service, enumerates the
users of a recording and downloads each user's audio track in parallel,
decoding the chunked Opus streams into per-track WAV files.`,
	Args:          cobra.ExactArgs(2),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), args[0], args[1])
	},
}

func init() {
	rootCmd.Flags().StringVar(&cfgFile, "config", "config.yaml", "path to the YAML config file")
	rootCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory (overrides config)")
	rootCmd.Flags().IntVarP(&maxParallel, "parallel", "p", 0, "max concurrent track loads (overrides config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
