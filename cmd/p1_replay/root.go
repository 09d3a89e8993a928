package main

import (
	"fmt"
	"os"

	"github.com/NotCoffee418/p1_mini/pkg/logging"
	"github.com/spf13/cobra"
)

var (
	hexInput  bool
	obisCodes []string
	chunkSize int
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "p1_replay <file>",
	Short: "Decode a captured P1 stream",
	Long: `p1_replay - Decode a recorded P1 port capture offline.

The file is fed to the decoder a chunk of bytes per tick, using a synthetic
clock so the result does not depend on the speed of the machine. Each value
delivered to a registered OBIS code is printed, followed by the decoder
statistics.

Input formats:
  Raw:  bytes exactly as read from the serial port
  Hex:  --hex, hexadecimal text, whitespace is ignored`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.Flags().BoolVar(&hexInput, "hex", false, "Input file is hexadecimal text")
	rootCmd.Flags().StringSliceVar(&obisCodes, "obis", nil, "OBIS codes to print (default: the standard sensors)")
	rootCmd.Flags().IntVar(&chunkSize, "chunk", 64, "Bytes fed to the decoder per tick")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "warn", "Decoder log level")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func runReplay(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	if hexInput {
		if data, err = decodeHex(data); err != nil {
			return fmt.Errorf("invalid hex input: %w", err)
		}
	}

	logger, err := logging.NewLogger(logLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	stats, err := replay(cmd.OutOrStdout(), data, replayOptions{
		codes:  obisCodes,
		chunk:  chunkSize,
		logger: logger,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n", stats)
	return nil
}
