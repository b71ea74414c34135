package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mesmerverse/vettid-dev/loginkit/login"
	"github.com/mesmerverse/vettid-dev/loginkit/pin2"
)

var errPinMismatch = errors.New("PIN does not match")

var pinCmd = &cobra.Command{
	Use:   "pin",
	Short: "Log in with, check and change PINs",
}

var pinLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Unlock a login with its PIN and print the recovered tree",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		target, err := readTarget(cmd)
		if err != nil {
			return err
		}
		otp, _ := cmd.Flags().GetString("otp")

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		tree, err := a.unlock(ctx, target.appID, target.username, target.pin, login.LoginOptions{OTP: otp})
		if err != nil {
			return err
		}
		printTree(cmd.OutOrStdout(), tree, 0)
		return nil
	},
}

var pinVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check a PIN against the server without changing the stash",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		target, err := readTarget(cmd)
		if err != nil {
			return err
		}

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		stashTree, err := a.stashes.Load(ctx)
		if err != nil {
			return err
		}
		if stashTree == nil {
			return login.ErrStashNotFound
		}
		node := pin2.FindStash(stashTree, target.appID)
		if node == nil {
			return login.ErrNotEnabled
		}
		tree := &login.LoginTree{LoginID: node.LoginID, AppID: target.appID, Username: target.username}

		if !pin2.Verify(ctx, a.client, tree, target.pin) {
			return errPinMismatch
		}
		fmt.Fprintln(cmd.OutOrStdout(), "PIN OK")
		return nil
	},
}

var pinChangeCmd = &cobra.Command{
	Use:   "change",
	Short: "Set a new PIN, or turn PIN login on or off",
	Long: `Unlock with the current PIN, then apply the change to the login and every
login below it.

--new-pin alone keeps PIN login in its current state (turning it on if no PIN
was known). --disable keeps the PIN cached on the device but stops it from
unlocking the login.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		target, err := readTarget(cmd)
		if err != nil {
			return err
		}

		var opts pin2.ChangeOptions
		if cmd.Flags().Changed("new-pin") {
			newPin, _ := cmd.Flags().GetString("new-pin")
			opts.Pin = &newPin
		}
		enable, _ := cmd.Flags().GetBool("enable")
		disable, _ := cmd.Flags().GetBool("disable")
		switch {
		case enable && disable:
			return fmt.Errorf("--enable and --disable are mutually exclusive")
		case enable:
			opts.Enable = &enable
		case disable:
			off := false
			opts.Enable = &off
		}

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		tree, err := a.unlock(ctx, target.appID, target.username, target.pin, login.LoginOptions{})
		if err != nil {
			return err
		}
		if err := pin2.ChangePin(ctx, a.client, tree, target.username, opts); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "PIN updated")
		return nil
	},
}

var pinDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove the PIN credential from the server and this device",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		target, err := readTarget(cmd)
		if err != nil {
			return err
		}

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		tree, err := a.unlock(ctx, target.appID, target.username, target.pin, login.LoginOptions{})
		if err != nil {
			return err
		}
		if err := pin2.DeletePin(ctx, a.client, tree); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "PIN deleted")
		return nil
	},
}

type pinTarget struct {
	appID    string
	username string
	pin      string
}

func readTarget(cmd *cobra.Command) (pinTarget, error) {
	var t pinTarget
	t.appID, _ = cmd.Flags().GetString("app")
	t.username, _ = cmd.Flags().GetString("username")
	pinFlag, _ := cmd.Flags().GetString("pin")

	pin, err := readPIN(pinFlag, "PIN: ")
	if err != nil {
		return t, err
	}
	if pin == "" {
		return t, fmt.Errorf("a PIN is required")
	}
	t.pin = pin
	return t, nil
}

func printTree(w io.Writer, tree *login.LoginTree, depth int) {
	for i := 0; i < depth; i++ {
		fmt.Fprint(w, "  ")
	}
	fmt.Fprintln(w, tree.String())
	for _, child := range tree.Children {
		printTree(w, child, depth+1)
	}
}

func init() {
	rootCmd.AddCommand(pinCmd)
	pinCmd.AddCommand(pinLoginCmd, pinVerifyCmd, pinChangeCmd, pinDeleteCmd)

	for _, c := range []*cobra.Command{pinLoginCmd, pinVerifyCmd, pinChangeCmd, pinDeleteCmd} {
		c.Flags().StringP("app", "a", "", "Application id (default: the root login)")
		c.Flags().StringP("username", "u", "", "Username (default: the one saved in the stash)")
		c.Flags().String("pin", "", "Current PIN (default $"+pinEnv+" or prompt)")
	}
	pinLoginCmd.Flags().String("otp", "", "OTP code (default: computed from the cached OTP key)")

	pinChangeCmd.Flags().String("new-pin", "", "New PIN")
	pinChangeCmd.Flags().Bool("enable", false, "Turn PIN login on")
	pinChangeCmd.Flags().Bool("disable", false, "Turn PIN login off, keeping the PIN cached")
}
