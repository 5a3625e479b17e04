package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"zk-attestation/attestclient"
	"zk-attestation/proofverifier"
	"zk-attestation/shared"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	proofFile    string
	strategyName string
	remoteVerify bool
)

// verifyCmd checks a claim with one of the three strategies.
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a Reclaim claim",
	Long: `verify reads a claim in SDK or on-chain form and verifies it with the
selected strategy: offchain-sdk, onchain-gas-free or onchain-transactional.
The on-chain strategies read SEPOLIA_RPC_URL, RECLAIM_ADDRESS and PRIVATE_KEY.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		strategy, err := proofverifier.ParseStrategy(strategyName)
		if err != nil {
			return err
		}

		raw, err := readProof(proofFile)
		if err != nil {
			return err
		}

		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer logger.Sync()

		var result *proofverifier.VerificationResult
		if remoteVerify {
			client := attestclient.New(attesterURL, attestclient.WithLogger(logger.Logger))
			result, err = client.VerifyClaim(cmd.Context(), strategy, raw)
		} else {
			onchain := proofverifier.NewOnchainVerifier(proofverifier.LoadOnchainConfig(), nil, logger.Logger)
			result, err = proofverifier.NewVerifier(onchain, logger.Logger).Verify(cmd.Context(), strategy, raw)
		}
		if err != nil {
			logger.WithStrategy(strategy.String()).Error("Verification failed",
				zap.Stringer("kind", shared.KindOf(err)),
				zap.String("tx_hash", shared.TxHashOf(err)),
				zap.Error(err))
			return err
		}

		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().StringVarP(&proofFile, "file", "f", "-", "claim JSON file, - for stdin")
	verifyCmd.Flags().StringVarP(&strategyName, "strategy", "s", proofverifier.OffchainSDK.String(), "verification strategy")
	verifyCmd.Flags().BoolVar(&remoteVerify, "remote", false, "verify through the attestation service instead of locally")
}

func readProof(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
