package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	syncUser   string
	syncDevice string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Merge a user's device conversations into one device",
	Long: `Runs one cross-device merge for --user into the session owned by
--device. The merge is skipped when the same device synced within the
configured staleness window.`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().StringVarP(&syncUser, "user", "u", "", "User ID to sync")
	syncCmd.Flags().StringVarP(&syncDevice, "device", "d", "", "Device that receives the merged session (default: router.device_id)")
	_ = syncCmd.MarkFlagRequired("user")
}

func runSync(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg, nil, false)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.router.SyncDevices(cmd.Context(), syncUser, syncDevice)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if result.Skipped {
		fmt.Fprintln(out, "Already up to date.")
		return nil
	}
	fmt.Fprintf(out, "Merged %d device(s): %d messages, conversation %s\n",
		result.DeviceCount, len(result.Session.Messages), result.Session.ConversationID)
	return nil
}
