package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	apiFlag  string
	userFlag string
	chanFlag string
	dmFlag   string
	rootCmd  = &cobra.Command{
		Use:   "loomctl",
		Short: "CLI client for the loom chat service",
	}
)

func main() {
	rootCmd.PersistentFlags().StringVarP(&apiFlag, "api", "a", "http://localhost:8080", "Chat service base URL")
	rootCmd.PersistentFlags().StringVarP(&userFlag, "user", "u", "", "User ID")
	rootCmd.PersistentFlags().StringVarP(&chanFlag, "channel", "c", "", "Channel ID")
	rootCmd.PersistentFlags().StringVarP(&dmFlag, "dm", "d", "", "DM channel ID")

	sendCmd := &cobra.Command{
		Use:   "send [content]",
		Short: "Send a message into a channel or DM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parent, _ := cmd.Flags().GetString("parent")
			mentions, _ := cmd.Flags().GetStringSlice("mention")
			if userFlag == "" {
				return fmt.Errorf("--user required")
			}
			return runSend(apiFlag, userFlag, chanFlag, dmFlag, args[0], parent, mentions, os.Stdout)
		},
	}
	sendCmd.Flags().StringP("parent", "p", "", "Parent message ID (thread reply)")
	sendCmd.Flags().StringSlice("mention", nil, "Mentioned user IDs")
	rootCmd.AddCommand(sendCmd)

	readCmd := &cobra.Command{
		Use:   "read",
		Short: "Mark a conversation as read",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userFlag == "" {
				return fmt.Errorf("--user required")
			}
			return runRead(apiFlag, userFlag, chanFlag, dmFlag, os.Stdout)
		},
	}
	rootCmd.AddCommand(readCmd)

	unreadCmd := &cobra.Command{
		Use:   "unread",
		Short: "Show unread state for a conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userFlag == "" {
				return fmt.Errorf("--user required")
			}
			return runUnread(apiFlag, userFlag, chanFlag, dmFlag, os.Stdout)
		},
	}
	rootCmd.AddCommand(unreadCmd)

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream live fan-out events for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			natsURL, _ := cmd.Flags().GetString("nats")
			if userFlag == "" {
				return fmt.Errorf("--user required")
			}
			return runWatch(natsURL, userFlag, os.Stdout)
		},
	}
	watchCmd.Flags().String("nats", "nats://127.0.0.1:4222", "NATS server URL")
	rootCmd.AddCommand(watchCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
