package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/xhad/koa/pkg/chat"
)

const localUser = "local"

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with Koa in the terminal",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateConfig(); err != nil {
			return err
		}
		ctx := cmd.Context()

		index, err := openIndex(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer index.Close()

		registry, err := newRegistry(ctx, cfg, index, logger)
		if err != nil {
			return err
		}

		color.Cyan("\nChat with Koa (type 'exit' to quit, '/clear' to start over)")
		if index.Len() == 0 {
			color.Yellow("The index is empty; answers will not cite any sources.")
		}

		scanner := bufio.NewScanner(os.Stdin)
		lines := make(chan string)
		go func() {
			defer close(lines)
			for scanner.Scan() {
				lines <- scanner.Text()
			}
		}()

		userPrompt := color.New(color.FgGreen).PrintfFunc()
		assistantPrompt := color.New(color.FgCyan).PrintfFunc()

	repl:
		for {
			userPrompt("\nYou: ")

			var line string
			select {
			case <-ctx.Done():
				fmt.Println()
				return nil
			case l, ok := <-lines:
				if !ok {
					break repl
				}
				line = l
			}

			query := strings.TrimSpace(line)
			switch strings.ToLower(query) {
			case "exit", "quit":
				return nil
			case "/clear":
				registry.Reset(localUser)
				color.Blue("Conversation cleared.")
				continue
			}
			if err := chat.ValidateMessage(query); err != nil {
				continue
			}

			spinner := getSpinner(" Thinking...")
			reply := registry.Get(localUser).HandleUserMessage(ctx, query)
			spinner.Finish()

			if reply == chat.ErrorReply {
				color.Red("\n%s\n", reply)
				continue
			}
			fmt.Print("\n")
			assistantPrompt("Koa: %s\n", reply)
		}

		return scanner.Err()
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}
