package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/raptchat/rapt/internal/api"
)

func init() {
	rootCmd.AddCommand(statusCmd, loginCmd, verifyCmd, logoutCmd, profileCmd)
	profileCmd.Flags().StringVar(&profileFCMToken, "fcm-token", "", "set the device push token")
}

var profileFCMToken string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show session status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(api.MethodStatus, nil, func(resp map[string]any) {
			fmt.Printf("Session:   %s\n", str(resp, "session"))
			fmt.Printf("Status:    %s (since %s)\n", str(resp, "status"), millis(integer(resp, "status_since_ms")))
			fmt.Printf("Uptime:    %s\n", time.Duration(integer(resp, "uptime_ms"))*time.Millisecond)
			if phone := str(resp, "phone"); phone != "" {
				fmt.Printf("Phone:     %s (%s)\n", phone, str(resp, "user_id"))
			} else {
				fmt.Println("Phone:     (not logged in)")
			}
			fmt.Printf("Contacts:  %d (last sync %s)\n", integer(resp, "contact_count"), millis(integer(resp, "contacts_last_sync")))
			fmt.Printf("Rooms:     %d (last sync %s)\n", integer(resp, "room_count"), millis(integer(resp, "chats_last_sync")))
			fmt.Printf("Messages:  %d (%d pending)\n", integer(resp, "message_count"), integer(resp, "pending_count"))
			schema := fmt.Sprintf("v%d", integer(resp, "schema_version"))
			if dirty, _ := resp["schema_dirty"].(bool); dirty {
				schema += " (dirty)"
			}
			fmt.Printf("Schema:    %s\n", schema)
			if n := integer(resp, "events_dropped"); n > 0 {
				fmt.Printf("Dropped:   %d events\n", n)
			}

			open, _ := resp["open_rooms"].(map[string]any)
			ids, _ := resp["open_room_ids"].([]any)
			for _, id := range ids {
				fmt.Printf("Open:      %v %v\n", id, open[fmt.Sprint(id)])
			}
		})
	},
}

var loginCmd = &cobra.Command{
	Use:   "login <phone>",
	Short: "Request a verification code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(api.MethodLogin, map[string]any{"phone": args[0]}, func(resp map[string]any) {
			fmt.Println(str(resp, "message"))
			fmt.Printf("Run: raptctl verify <code> %s\n", str(resp, "phone"))
		})
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify <code> <phone>",
	Short: "Complete login with the verification code",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(api.MethodVerify, map[string]any{"code": args[0], "phone": args[1]}, func(resp map[string]any) {
			fmt.Printf("Logged in as %s (%s)\n", str(resp, "phone"), str(resp, "user_id"))
		})
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the session credential",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(api.MethodLogout, nil, func(map[string]any) {
			fmt.Println("Logged out.")
		})
	},
}

var profileCmd = &cobra.Command{
	Use:   "profile [name]",
	Short: "Show the profile, or change the display name",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := map[string]any{}
		if len(args) == 1 {
			req["name"] = args[0]
		}
		if cmd.Flags().Changed("fcm-token") {
			req["device_fcm_token"] = profileFCMToken
		}
		return call(api.MethodProfile, req, func(resp map[string]any) {
			user, _ := resp["user"].(map[string]any)
			fmt.Printf("ID:       %s\n", str(user, "id"))
			fmt.Printf("Name:     %s\n", str(user, "name"))
			fmt.Printf("Phone:    %s\n", str(user, "phone"))
			fmt.Printf("Verified: %v\n", user["is_verified"])
		})
	},
}
