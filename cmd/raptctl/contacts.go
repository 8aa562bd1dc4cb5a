package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/raptchat/rapt/internal/api"
)

func init() {
	contactsCmd.AddCommand(contactsSyncCmd, contactsSearchCmd, contactsDeleteCmd)
	rootCmd.AddCommand(contactsCmd)
}

var contactsCmd = &cobra.Command{
	Use:   "contacts",
	Short: "Contact commands",
}

var contactsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile device, server and cached contacts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(api.MethodSyncContacts, nil, func(resp map[string]any) {
			printContacts(list(resp, "contacts"))
			fmt.Printf("\nuploaded %d, inserted %d, updated %d\n",
				integer(resp, "uploaded"), integer(resp, "inserted"), integer(resp, "updated"))
		})
	},
}

var contactsSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search cached contacts by name or phone",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(api.MethodSearchContacts, map[string]any{"query": args[0]}, func(resp map[string]any) {
			printContacts(list(resp, "contacts"))
		})
	},
}

var contactsDeleteCmd = &cobra.Command{
	Use:   "delete <local-id>",
	Short: "Delete a cached contact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid contact id %q", args[0])
		}
		return call(api.MethodDeleteContact, map[string]any{"id": id}, func(map[string]any) {
			fmt.Printf("Deleted contact %d.\n", id)
		})
	},
}

func printContacts(contacts []map[string]any) {
	if len(contacts) == 0 {
		fmt.Println("No contacts.")
		return
	}
	for _, c := range contacts {
		state := ""
		if c["is_online"] == true {
			state = " (online)"
		}
		fmt.Printf("%-5d %-24s %-16s %s%s\n", integer(c, "id"), str(c, "name"), str(c, "phone"), str(c, "contact_id"), state)
	}
}
