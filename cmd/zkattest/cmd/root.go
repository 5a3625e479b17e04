package cmd

import (
	"fmt"
	"os"

	"zk-attestation/shared"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	Version string
	Commit  string
)

const defaultAttesterURL = "http://localhost:8000"

var (
	development bool
	attesterURL string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "zkattest",
	Short: "Tools for Reclaim claims and the attestation service",
	Long: `zkattest verifies Reclaim claims off-chain or against the verifier
contract, and runs the payment gate against a live attestation service.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// a missing .env is fine
		_ = godotenv.Load()

		if !cmd.Flags().Changed("development") {
			development = shared.GetEnvBoolOrDefault("DEVELOPMENT", false)
		}
		if !cmd.Flags().Changed("attester-url") {
			attesterURL = shared.GetEnvOrDefault("ATTESTER_URL", defaultAttesterURL)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	rootCmd.Version = fmt.Sprintf("%s (%s)", Version, Commit)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&development, "development", false, "human readable debug logging (env DEVELOPMENT)")
	rootCmd.PersistentFlags().StringVar(&attesterURL, "attester-url", defaultAttesterURL, "base URL of the attestation service (env ATTESTER_URL)")
}

func newLogger() (*shared.Logger, error) {
	return shared.NewLogger(shared.LoggerConfig{ServiceName: "zkattest", Development: development})
}
