package cmd

import (
	"encoding/json"
	"fmt"

	"zk-attestation/attestclient"
	"zk-attestation/paymentgate"

	"github.com/spf13/cobra"
)

var gateCmd = &cobra.Command{
	Use:   "payment-gate <session-id>",
	Short: "Check that a session holds an acceptable payment proof",
	Long: `payment-gate fetches the proofs of a session from the attestation
service and runs the payment policy on the payment confirmation proof.
A non-zero exit status means the gated action must not proceed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer logger.Sync()

		client := attestclient.New(attesterURL, attestclient.WithLogger(logger.Logger))
		approval, err := paymentgate.NewGate(client, logger).VerifyPaymentProof(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if fresh {
			if _, err := client.VerifyProof(cmd.Context(), approval.ProofID); err != nil {
				return err
			}
		}

		out, err := json.MarshalIndent(approval, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

var fresh bool

func init() {
	rootCmd.AddCommand(gateCmd)

	gateCmd.Flags().BoolVar(&fresh, "fresh", true, "also require the proof to pass the freshness check")
}
