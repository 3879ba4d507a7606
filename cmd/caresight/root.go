package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var (
	envFile   string
	rulesPath string
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:           "caresight",
	Short:         "Care-facility record retrieval, correlation and summaries",
	Long:          "caresight answers natural-language questions over care records, detects medication and vital-sign correlations, and maintains daily, weekly and monthly summaries.",
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a .env file (ignored if missing)")
	rootCmd.PersistentFlags().StringVar(&rulesPath, "rules", "", "Path to a YAML category rule file (default: built-in rules)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override CARESIGHT_LOG_LEVEL (debug, info, warn, error)")
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
