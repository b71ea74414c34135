package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesmerverse/vettid-dev/loginkit/login"
)

// stashView is a stash node with every secret reduced to a flag.
type stashView struct {
	LoginID   string       `json:"loginId"`
	AppID     string       `json:"appId,omitempty"`
	Username  string       `json:"username,omitempty"`
	LastLogin *time.Time   `json:"lastLogin,omitempty"`
	PIN       bool         `json:"pinEnabled"`
	PINCached bool         `json:"pinCached"`
	OTP       bool         `json:"otp"`
	Children  []*stashView `json:"children,omitempty"`
}

func viewOf(s *login.LoginStash) *stashView {
	v := &stashView{
		LoginID:   s.LoginID,
		AppID:     s.AppID,
		Username:  s.Username,
		LastLogin: s.LastLogin,
		PIN:       len(s.Pin2Key) > 0,
		PINCached: s.Pin2TextBox != nil,
		OTP:       s.OTPKey != "",
	}
	for _, child := range s.Children {
		v.Children = append(v.Children, viewOf(child))
	}
	return v
}

var stashCmd = &cobra.Command{
	Use:   "stash",
	Short: "Inspect or remove the device stash",
}

var stashShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the stash without secrets",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
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
		out, err := json.MarshalIndent(viewOf(stashTree), "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

var stashDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Forget every login on this device",
	Long: `Delete the stash. Server records are untouched, but without the stash
the logins cannot be unlocked from this device again.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			return fmt.Errorf("refusing to delete the stash without --yes")
		}
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		return a.stashes.Delete(ctx)
	},
}

func init() {
	rootCmd.AddCommand(stashCmd)
	stashCmd.AddCommand(stashShowCmd, stashDeleteCmd)
	stashDeleteCmd.Flags().Bool("yes", false, "Confirm deletion")
}
