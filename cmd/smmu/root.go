package main

import (
	"os"
	"strconv"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "smmu",
	Short: "smmu drives the SMMUv3 translation engines from the command line.",
	Long: `smmu drives the SMMUv3 translation engines from the command ` +
		`line. Currently, it supports replaying translation traces and ` +
		`reporting TLB and fault statistics.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

var loadDotEnvOnce sync.Once

// envInt reads an integer flag default from the environment. A .env file in
// the working directory can preset these variables.
func envInt(key string, fallback int) int {
	loadDotEnvOnce.Do(func() { _ = godotenv.Load() })

	s := os.Getenv(key)
	if s == "" {
		return fallback
	}

	v, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}

	return v
}
