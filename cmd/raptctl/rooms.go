package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/raptchat/rapt/internal/api"
)

func init() {
	roomsCmd.AddCommand(roomsListCmd, roomsSyncCmd, roomsCreateCmd, roomsOpenCmd, roomsCloseCmd)
	rootCmd.AddCommand(roomsCmd, messagesCmd, sendCmd, readCmd, signalCmd)
}

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "Chat room commands",
}

var roomsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached rooms",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(api.MethodListRooms, nil, func(resp map[string]any) {
			printRooms(list(resp, "rooms"))
		})
	},
}

var roomsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile rooms and messages with the server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(api.MethodSyncChats, nil, func(resp map[string]any) {
			printRooms(list(resp, "rooms"))
			fmt.Printf("\npushed %d, pulled %d, members linked %d, messages inserted %d\n",
				integer(resp, "pushed"), integer(resp, "pulled"),
				integer(resp, "members_linked"), integer(resp, "messages_inserted"))
		})
	},
}

var roomsCreateCmd = &cobra.Command{
	Use:   "create <contact-id>...",
	Short: "Create a room with the given users",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids := make([]any, len(args))
		for i, a := range args {
			ids[i] = a
		}
		return call(api.MethodCreateRoom, map[string]any{"contact_ids": ids}, func(resp map[string]any) {
			room, _ := resp["room"].(map[string]any)
			printRooms([]map[string]any{room})
		})
	},
}

var roomsOpenCmd = &cobra.Command{
	Use:   "open <room-id>",
	Short: "Connect the room's realtime channel",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(api.MethodOpenRoom, map[string]any{"room_id": args[0]}, func(resp map[string]any) {
			fmt.Printf("Room %s: %s\n", str(resp, "room_id"), str(resp, "state"))
		})
	},
}

var roomsCloseCmd = &cobra.Command{
	Use:   "close <room-id>",
	Short: "Disconnect the room's realtime channel",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(api.MethodCloseRoom, map[string]any{"room_id": args[0]}, func(resp map[string]any) {
			fmt.Printf("Room %s: %s\n", str(resp, "room_id"), str(resp, "state"))
		})
	},
}

var messagesCmd = &cobra.Command{
	Use:   "messages <room-id>",
	Short: "List a room's cached messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(api.MethodListMessages, map[string]any{"room_id": args[0]}, func(resp map[string]any) {
			msgs := list(resp, "messages")
			if len(msgs) == 0 {
				fmt.Println("No messages.")
				return
			}
			for _, m := range msgs {
				printMessage(m)
			}
		})
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <room-id> <text>...",
	Short: "Send a message to an open room",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := map[string]any{"room_id": args[0], "text": strings.Join(args[1:], " ")}
		return call(api.MethodSendText, req, func(resp map[string]any) {
			msg, _ := resp["message"].(map[string]any)
			fmt.Printf("Sent %s (correlation %s)\n", str(msg, "id"), str(msg, "socket_message_id"))
		})
	},
}

var readCmd = &cobra.Command{
	Use:   "read <room-id> <message-id>",
	Short: "Mark a message as read",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(api.MethodMarkRead, map[string]any{"room_id": args[0], "message_id": args[1]}, func(map[string]any) {
			fmt.Println("Read receipt sent.")
		})
	},
}

var signalCmd = &cobra.Command{
	Use:   "signal <room-id> <online|offline|reading|away|typing|thinking>",
	Short: "Send a presence signal to an open room",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(api.MethodSignal, map[string]any{"room_id": args[0], "type": args[1]}, func(map[string]any) {
			fmt.Println("Signal sent.")
		})
	},
}

func printRooms(rooms []map[string]any) {
	if len(rooms) == 0 {
		fmt.Println("No rooms.")
		return
	}
	for _, r := range rooms {
		var names []string
		for _, m := range list(r, "members") {
			names = append(names, str(m, "name"))
		}
		msgs := list(r, "messages")
		last := ""
		if len(msgs) > 0 {
			last = str(msgs[len(msgs)-1], "body")
		}
		fmt.Printf("%-38s %-30s %4d  %s\n", str(r, "id"), strings.Join(names, ", "), len(msgs), last)
	}
}

func printMessage(m map[string]any) {
	ts := time.UnixMilli(integer(m, "timestamp")).Format("2006-01-02 15:04")
	read := " "
	if m["is_read"] == true {
		read = "✓"
	}
	fmt.Printf("%s %s %-12s %s  [%s]\n", ts, read, str(m, "sender_id"), str(m, "body"), str(m, "id"))
}
