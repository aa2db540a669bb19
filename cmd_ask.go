package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"tether/agent"
	"tether/config"
	"tether/model"
	"tether/protocol"
	"tether/storage"
)

func init() {
	rootCmd.AddCommand(askCmd)
}

var askCmd = &cobra.Command{
	Use:   "ask [prompt]",
	Short: "Send a one-shot prompt and print the answer",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	prompt := strings.Join(args, " ")

	conv := model.NewConversation(storage.GenerateConversationTitle(prompt), a.provider.GetModel())
	if err := a.store.CreateConversation(ctx, conv); err != nil {
		return err
	}
	a.mediator.BindConversation(conv.ID)

	// One-shot runs have nobody to answer input requests; decline them so
	// the server gets a response instead of a hang.
	declineCancel := autoDeclineElicitations(a)
	defer declineCancel()

	printer := newEventPrinter(a.bus, config.DebugEnabled())
	defer printer.Stop()

	messages := []model.Message{}
	if a.cfg.DefaultSystemPrompt != "" {
		messages = append(messages, model.NewMessage(conv.ID, model.RoleSystem, a.cfg.DefaultSystemPrompt))
	}
	user := model.NewMessage(conv.ID, model.RoleUser, prompt)
	if err := a.store.AppendMessage(ctx, user); err != nil {
		return err
	}
	messages = append(messages, user)

	result, err := a.loop.Run(ctx, agent.RunInput{
		ConversationID: conv.ID,
		Model:          a.provider.GetModel(),
		Messages:       messages,
	})
	if err != nil {
		return err
	}

	if result.Truncated {
		fmt.Fprintln(os.Stderr, "(stopped at the iteration cap)")
	}
	return nil
}

// autoDeclineElicitations resolves every incoming elicitation request with
// decline. Returns a cancel func for the watcher.
func autoDeclineElicitations(a *app) func() {
	events, cancel := a.bus.Subscribe()
	go func() {
		for event := range events {
			if event.Type != agent.EventElicitationRequestReceived || event.Elicitation == nil {
				continue
			}
			id := fmt.Sprint(event.Elicitation.ID)
			if err := a.mediator.Resolve(id, protocol.ElicitationDecline, nil); err != nil {
				a.logger.Warn("failed to auto-decline elicitation")
			}
		}
	}()
	return cancel
}
