package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"riddlebot/pkg/bot"
	"riddlebot/pkg/bus"
	"riddlebot/pkg/config"
	"riddlebot/pkg/dispatch"
	"riddlebot/pkg/fallback"
	"riddlebot/pkg/session"
	"riddlebot/pkg/ui/chat"
)

const defaultLocalSender = "local"

var (
	chatPrompt string
	chatSender string
	chatPlain  bool
)

var chatCmd = &cobra.Command{
	Use:   "chat [prompt]",
	Short: "Talk to the bot from the terminal",
	Long: "Runs the dispatcher locally and sends one prompt or starts an interactive chat. " +
		"The sender address must be known to the user directory unless auto_register is enabled.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadRuntime("cmd.chat")
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		b, err := bot.New(ctx, cfg, bot.Options{})
		if err != nil {
			return fmt.Errorf("assemble bot: %w", err)
		}
		defer func() {
			if err := b.Close(); err != nil {
				log.Warn("Failed to close bot resources", "error", err)
			}
		}()

		if err := b.Provider.Health(ctx); err != nil {
			log.Warn("Provider health check failed; fallback replies will apologise", "error", err)
		}

		local, err := session.Start(ctx, b.Dispatcher, bus.NewMessageBus(), chatSender, log)
		if err != nil {
			return err
		}
		defer local.Close()

		prompt := resolvePrompt(chatPrompt, args)
		if chatPlain {
			if prompt != "" {
				return runPlainPrompt(ctx, cmd.OutOrStdout(), local.Prompt, prompt)
			}
			return runPlainInteractive(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), local.Prompt)
		}

		info := sessionInfo(cfg, local.Address(), len(b.Registry.Skills()))
		if prompt != "" {
			return chat.RunOneShot(ctx, local.Prompt, prompt, info)
		}
		return chat.RunInteractive(ctx, local.Prompt, info)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVarP(&chatPrompt, "prompt", "p", "", "prompt text to send")
	chatCmd.Flags().StringVarP(&chatSender, "sender", "s", defaultLocalSender, "sender address to chat as")
	chatCmd.Flags().BoolVar(&chatPlain, "plain", false, "print replies as plain lines instead of the terminal UI")
}

func sessionInfo(cfg *config.Config, sender string, skills int) chat.SessionInfo {
	persona := strings.TrimSpace(cfg.Generation.Persona)
	if persona == "" {
		persona = fallback.DefaultPersona
	}

	return chat.SessionInfo{
		Sender:   sender,
		Persona:  persona,
		Provider: cfg.Generation.Provider,
		Model:    cfg.Generation.Model,
		Skills:   skills,
	}
}

func resolvePrompt(flagValue string, args []string) string {
	if value := strings.TrimSpace(flagValue); value != "" {
		return value
	}

	return strings.TrimSpace(strings.Join(args, " "))
}

func runPlainPrompt(ctx context.Context, out io.Writer, promptFn chat.PromptFunc, prompt string) error {
	reply, err := promptFn(ctx, prompt)
	if err != nil {
		return fmt.Errorf("prompt failed: %w", err)
	}

	printReply(out, reply)
	return nil
}

func runPlainInteractive(ctx context.Context, in io.Reader, out io.Writer, promptFn chat.PromptFunc) error {
	scanner := bufio.NewScanner(in)

	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}

		prompt := strings.TrimSpace(scanner.Text())
		if prompt == "" {
			continue
		}
		if isExitCommand(prompt) {
			return nil
		}

		reply, err := promptFn(ctx, prompt)
		if err != nil {
			fmt.Fprintf(out, "prompt failed: %v\n", err)
			continue
		}
		printReply(out, reply)
	}
}

func printReply(out io.Writer, reply session.Reply) {
	marker := "<"
	switch {
	case reply.Failed:
		marker = "!"
	case reply.Branch == dispatch.BranchSkill:
		marker = "*"
	case reply.Branch == dispatch.BranchNone:
		fmt.Fprintln(out, "(no reply: sender is not registered)")
		return
	}

	for _, segment := range reply.Segments {
		fmt.Fprintf(out, "%s %s\n", marker, segment)
	}
	if len(reply.Segments) > 0 {
		fmt.Fprintln(out)
	}
}

func isExitCommand(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "/exit", "quit", ":q":
		return true
	default:
		return false
	}
}
