package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/peterh/liner"
	"github.com/policyassist/policyassist/pkg/api"
	"github.com/policyassist/policyassist/pkg/chat"
	"github.com/spf13/cobra"
)

var errNoTarget = errors.New("choose a policy with --policy or ask communications with --comms")

// asker submits one question on the current thread.
type asker func(ctx context.Context, question string) (chat.Message, error)

func newAskCmd(opts *rootOptions) *cobra.Command {
	var (
		policy   string
		comms    bool
		commType string
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question, or start an interactive chat",
		Long: "With a question, asks it once and prints the answer. Without one, starts an interactive chat.\n" +
			"Staff choose a policy or the communications corpus; policyholders always ask about their own policy.\n" +
			"In the chat, /policy N and /comms [type] switch targets and /quit leaves.",
		RunE: opts.run(func(cmd *cobra.Command, a *app, args []string) error {
			sess := a.session.Current()
			target := chat.PolicyTarget(policy)
			if comms {
				target = chat.CommunicationsTarget(api.CommunicationType(commType))
			}

			var ask asker
			var suggestions []string
			switch {
			case sess.IsPolicyholder():
				c := a.portal.PolicyholderChat()
				ask = c.Ask
				suggestions = c.Suggestions()
			case sess.IsStaff():
				c := a.portal.StaffChat()
				ask = func(ctx context.Context, q string) (chat.Message, error) {
					if target.Kind == chat.KindPolicy && target.PolicyNumber == "" {
						return chat.Message{}, errNoTarget
					}
					return c.Submit(ctx, q, target)
				}
			default:
				return errors.New("not signed in: run 'policyassist login' or 'policyassist verify'")
			}

			out := cmd.OutOrStdout()
			if len(args) > 0 {
				reply, err := ask(cmd.Context(), strings.Join(args, " "))
				if err != nil {
					return err
				}
				printReply(out, reply)
				return nil
			}
			return chatLoop(cmd.Context(), out, ask, suggestions, &target, sess.IsStaff())
		}),
	}

	cmd.Flags().StringVarP(&policy, "policy", "p", "", "policy number to ask about (staff)")
	cmd.Flags().BoolVar(&comms, "comms", false, "ask across communications (staff)")
	cmd.Flags().StringVar(&commType, "type", "", "narrow --comms to one communication type")
	return cmd
}

func chatLoop(ctx context.Context, out io.Writer, ask asker, suggestions []string, target *chat.Target, staff bool) error {
	line := liner.NewLiner()
	defer func() { _ = line.Close() }()
	line.SetCtrlCAborts(true)
	line.SetCompleter(func(prefix string) []string {
		var c []string
		for _, s := range suggestions {
			if strings.HasPrefix(strings.ToLower(s), strings.ToLower(prefix)) {
				c = append(c, s)
			}
		}
		return c
	})

	if len(suggestions) > 0 {
		printHeader(out, "Try asking:")
		for _, s := range suggestions {
			printFaint(out, "  %s", s)
		}
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		input, err := line.Prompt(prompt(*target, staff))
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if strings.HasPrefix(input, "/") {
			if done := command(out, input, target, staff); done {
				return nil
			}
			continue
		}

		reply, err := ask(ctx, input)
		if err != nil {
			printErr(out, "%v", err)
			continue
		}
		printReply(out, reply)
	}
}

// command handles a slash command and reports whether the loop should end.
func command(out io.Writer, input string, target *chat.Target, staff bool) bool {
	fields := strings.Fields(input)
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/policy":
		if !staff || len(fields) < 2 {
			printErr(out, "usage: /policy POLICY_NUMBER (staff only)")
			return false
		}
		*target = chat.PolicyTarget(fields[1])
	case "/comms":
		if !staff {
			printErr(out, "/comms is for staff only")
			return false
		}
		t := api.CommunicationType("")
		if len(fields) > 1 {
			parsed, err := api.ParseCommunicationType(fields[1])
			if err != nil {
				printErr(out, "%v", err)
				return false
			}
			t = parsed
		}
		*target = chat.CommunicationsTarget(t)
	default:
		printErr(out, "unknown command %s", fields[0])
	}
	return false
}

func prompt(t chat.Target, staff bool) string {
	if !staff {
		return "> "
	}
	if t.Kind == chat.KindCommunications {
		if t.CommunicationType != "" {
			return fmt.Sprintf("[%s] > ", t.CommunicationType.Label())
		}
		return "[communications] > "
	}
	if t.PolicyNumber == "" {
		return "[no policy] > "
	}
	return fmt.Sprintf("[%s] > ", t.PolicyNumber)
}

func printReply(out io.Writer, m chat.Message) {
	if m.Failed() {
		printErr(out, "%s", m.Text)
		return
	}
	fmt.Fprintln(out, m.Text)
	if m.Result != nil {
		printFaint(out, "confidence %.0f%%, %d ms", m.Result.Confidence*100, m.Result.LatencyMs)
	}
	printCitations(out, m.Citations())
}
