package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	apiFlag   string
	tokenFlag string
	userFlag  string
	rootCmd   = &cobra.Command{
		Use:   "companionctl",
		Short: "CLI client for the Clario companion REST API",
	}
)

func main() {
	rootCmd.PersistentFlags().StringVarP(&apiFlag, "api", "a", "http://localhost:8080", "Companion service base URL")
	rootCmd.PersistentFlags().StringVarP(&tokenFlag, "token", "t", "", "Bearer token")

	chatCmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Send one chat message (empty message fetches the next onboarding question)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message := ""
			if len(args) > 0 {
				message = args[0]
			}
			if tokenFlag == "" {
				return fmt.Errorf("--token required")
			}
			return runChat(apiFlag, tokenFlag, message, os.Stdout)
		},
	}
	rootCmd.AddCommand(chatCmd)

	relationsCmd := &cobra.Command{
		Use:   "relations",
		Short: "List extracted relationships",
		RunE: func(cmd *cobra.Command, args []string) error {
			if tokenFlag == "" {
				return fmt.Errorf("--token required")
			}
			return runRelations(apiFlag, tokenFlag, os.Stdout)
		},
	}
	rootCmd.AddCommand(relationsCmd)

	moodCmd := &cobra.Command{
		Use:   "mood [text]",
		Short: "Score a piece of text for mood",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMood(apiFlag, tokenFlag, userFlag, args[0], os.Stdout)
		},
	}
	moodCmd.Flags().StringVarP(&userFlag, "user", "u", "", "User ID (used when no token is given)")
	rootCmd.AddCommand(moodCmd)

	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Empty Chair session operations",
	}

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start a new session",
		RunE: func(cmd *cobra.Command, args []string) error {
			person, _ := cmd.Flags().GetString("person")
			goal, _ := cmd.Flags().GetString("goal")
			if userFlag == "" {
				return fmt.Errorf("--user required")
			}
			return runStartSession(apiFlag, userFlag, person, goal, os.Stdout)
		},
	}
	startCmd.Flags().StringVarP(&userFlag, "user", "u", "", "User ID (required)")
	startCmd.Flags().StringP("person", "p", "", "Person in the red chair")
	startCmd.Flags().StringP("goal", "g", "", "Goal for the session")
	sessionCmd.AddCommand(startCmd)

	analyzeCmd := &cobra.Command{
		Use:   "analyze [message]",
		Short: "Send a pre-analysis message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, _ := cmd.Flags().GetString("session")
			if userFlag == "" || sessionID == "" {
				return fmt.Errorf("--user and --session required")
			}
			return runAnalyze(apiFlag, userFlag, sessionID, args[0], os.Stdout)
		},
	}
	analyzeCmd.Flags().StringVarP(&userFlag, "user", "u", "", "User ID (required)")
	analyzeCmd.Flags().StringP("session", "s", "", "Session ID (required)")
	sessionCmd.AddCommand(analyzeCmd)

	messageCmd := &cobra.Command{
		Use:   "message [text]",
		Short: "Send a chair-dialogue message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, _ := cmd.Flags().GetString("session")
			perspective, _ := cmd.Flags().GetString("perspective")
			if userFlag == "" {
				return fmt.Errorf("--user required")
			}
			return runSessionMessage(apiFlag, userFlag, sessionID, args[0], perspective, os.Stdout)
		},
	}
	messageCmd.Flags().StringVarP(&userFlag, "user", "u", "", "User ID (required)")
	messageCmd.Flags().StringP("session", "s", "", "Session ID (empty creates a new session)")
	messageCmd.Flags().StringP("perspective", "p", "blue", "Chair perspective: blue or red")
	sessionCmd.AddCommand(messageCmd)

	summarizeCmd := &cobra.Command{
		Use:   "summarize",
		Short: "Generate end-of-session summaries",
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, _ := cmd.Flags().GetString("session")
			if userFlag == "" || sessionID == "" {
				return fmt.Errorf("--user and --session required")
			}
			return runSummaries(apiFlag, userFlag, sessionID, os.Stdout)
		},
	}
	summarizeCmd.Flags().StringVarP(&userFlag, "user", "u", "", "User ID (required)")
	summarizeCmd.Flags().StringP("session", "s", "", "Session ID (required)")
	sessionCmd.AddCommand(summarizeCmd)

	rootCmd.AddCommand(sessionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
