package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesmerverse/vettid-dev/loginkit/login"
	"github.com/mesmerverse/vettid-dev/loginkit/pin2"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Create logins",
}

var accountCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create the root login for this device",
	Long: `Create the root login for this device and save it to a new stash.

With --pin the PIN is set and PIN login enabled straight away. Without it the
login can only be unlocked once a PIN is set with "pin change".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		username, _ := cmd.Flags().GetString("username")
		otpKey, _ := cmd.Flags().GetString("otp-key")
		pin, _ := cmd.Flags().GetString("pin")
		if username == "" {
			return fmt.Errorf("--username is required")
		}

		ctx := cmd.Context()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		tree, err := a.client.CreateLogin(ctx, nil, login.CreateOptions{Username: username, OTPKey: otpKey})
		if err != nil {
			return err
		}
		if pin != "" {
			if err := pin2.ChangePin(ctx, a.client, tree, "", pin2.ChangeOptions{Pin: &pin}); err != nil {
				return fmt.Errorf("login %s created but enabling the PIN failed: %w", tree.LoginID, err)
			}
		}
		fmt.Fprintln(cmd.OutOrStdout(), tree.LoginID)
		return nil
	},
}

var accountAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add an application login below the root",
	Long: `Unlock the root login with its PIN and add a login for --app below it.
The new login gets the same PIN when PIN login is enabled on the root.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		appID, _ := cmd.Flags().GetString("app")
		otpKey, _ := cmd.Flags().GetString("otp-key")
		pinFlag, _ := cmd.Flags().GetString("pin")
		if appID == "" {
			return fmt.Errorf("--app is required")
		}

		pin, err := readPIN(pinFlag, "PIN: ")
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		root, err := a.unlock(ctx, "", "", pin, login.LoginOptions{})
		if err != nil {
			return err
		}
		child, err := a.client.CreateLogin(ctx, root, login.CreateOptions{AppID: appID, OTPKey: otpKey})
		if err != nil {
			return err
		}
		if len(root.Pin2Key) > 0 {
			if err := pin2.ChangePin(ctx, a.client, child, "", pin2.ChangeOptions{Pin: &pin}); err != nil {
				return fmt.Errorf("login %s created but enabling the PIN failed: %w", child.LoginID, err)
			}
		}
		fmt.Fprintln(cmd.OutOrStdout(), child.LoginID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(accountCmd)
	accountCmd.AddCommand(accountCreateCmd, accountAddCmd)

	accountCreateCmd.Flags().StringP("username", "u", "", "Username for the new login")
	accountCreateCmd.Flags().String("otp-key", "", "Base32 TOTP secret to require at login")
	accountCreateCmd.Flags().String("pin", "", "Set and enable this PIN")

	accountAddCmd.Flags().StringP("app", "a", "", "Application id of the new login")
	accountAddCmd.Flags().String("otp-key", "", "Base32 TOTP secret to require at login")
	accountAddCmd.Flags().String("pin", "", "PIN of the root login (default $"+pinEnv+" or prompt)")
}
