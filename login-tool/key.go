package main

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/spf13/cobra"

	"github.com/mesmerverse/vettid-dev/loginkit/box"
	"github.com/mesmerverse/vettid-dev/loginkit/stash"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Generate material for stash encryption",
}

var keyNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Print a random hex key for the static source",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := box.RandomKey()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(key))
		return nil
	},
}

var keySaltCmd = &cobra.Command{
	Use:   "salt",
	Short: "Print a random hex salt for the passphrase source",
	RunE: func(cmd *cobra.Command, args []string) error {
		salt, err := box.RandomBytes(16)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(salt))
		return nil
	},
}

var keyKMSCmd = &cobra.Command{
	Use:   "kms",
	Short: "Generate a KMS-wrapped data key and print its ciphertext",
	RunE: func(cmd *cobra.Command, args []string) error {
		keyID, _ := cmd.Flags().GetString("key-id")
		region, _ := cmd.Flags().GetString("region")
		if region == "" {
			region = cfg.Stash.Encryption.Region
		}

		ctx := cmd.Context()
		awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
		if err != nil {
			return fmt.Errorf("failed to load AWS config: %w", err)
		}
		plaintext, ciphertext, err := stash.GenerateKMSDataKey(ctx, kms.NewFromConfig(awsCfg), keyID)
		if err != nil {
			return err
		}
		box.Zero(plaintext)
		fmt.Fprintln(cmd.OutOrStdout(), base64.StdEncoding.EncodeToString(ciphertext))
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "login-tool", Version)
	},
}

func init() {
	rootCmd.AddCommand(keyCmd, versionCmd)
	keyCmd.AddCommand(keyNewCmd, keySaltCmd, keyKMSCmd)
	keyKMSCmd.Flags().String("key-id", "", "KMS key id or alias")
	keyKMSCmd.Flags().String("region", "", "AWS region (default: stash.encryption.region)")
}
