package main

import (
	"bufio"
	"context"
	"errors"
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
	chatCmd.Flags().StringVar(&flagConversation, "conversation", "", "resume an existing conversation by id")
	rootCmd.AddCommand(chatCmd)
}

var flagConversation string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	RunE:  runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	conv, err := resumeOrCreateConversation(ctx, a)
	if err != nil {
		return err
	}
	a.mediator.BindConversation(conv.ID)

	printer := newEventPrinter(a.bus, config.DebugEnabled())
	defer printer.Stop()

	fmt.Printf("tether %s — %s (%s)\n", Version, a.provider.GetModel(), conv.ID)
	fmt.Println(`type a message, or /help for commands`)

	session := &chatSession{app: a, conv: conv}
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := session.handleCommand(ctx, line)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%v\n", err)
			}
			if quit {
				return nil
			}
			continue
		}

		if err := session.send(ctx, line); err != nil {
			if errors.Is(err, agent.ErrAborted) {
				fmt.Fprintln(os.Stderr, "(request cancelled)")
				continue
			}
			var completionErr *agent.CompletionError
			if errors.As(err, &completionErr) && completionErr.PaymentRequired() {
				fmt.Fprintln(os.Stderr, "provider rejected the request: payment required")
				continue
			}
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
	}
}

func resumeOrCreateConversation(ctx context.Context, a *app) (*model.Conversation, error) {
	if flagConversation != "" {
		conv, err := a.store.GetConversation(ctx, flagConversation)
		if err != nil {
			return nil, err
		}
		if conv == nil {
			return nil, fmt.Errorf("conversation %s not found", flagConversation)
		}
		return conv, nil
	}

	conv := model.NewConversation(storage.GenerateConversationTitle(""), a.provider.GetModel())
	if err := a.store.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}
	if err := a.store.SaveCurrentConversationID(ctx, conv.ID); err != nil {
		return nil, err
	}
	return &conv, nil
}

type chatSession struct {
	app  *app
	conv *model.Conversation
}

func (s *chatSession) send(ctx context.Context, text string) error {
	a := s.app

	history, err := a.store.ReadMessages(ctx, s.conv.ID)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		if a.cfg.DefaultSystemPrompt != "" {
			sys := model.NewMessage(s.conv.ID, model.RoleSystem, a.cfg.DefaultSystemPrompt)
			if err := a.store.AppendMessage(ctx, sys); err != nil {
				return err
			}
			history = append(history, sys)
		}
		title := storage.GenerateConversationTitle(text)
		if err := a.store.RenameConversation(ctx, s.conv.ID, title); err == nil {
			s.conv.Title = title
		}
	}

	user := model.NewMessage(s.conv.ID, model.RoleUser, text)
	if err := a.store.AppendMessage(ctx, user); err != nil {
		return err
	}
	history = append(history, user)

	_, err = a.loop.Run(ctx, agent.RunInput{
		ConversationID: s.conv.ID,
		Model:          a.provider.GetModel(),
		Messages:       history,
	})
	return err
}

func (s *chatSession) regenerate(ctx context.Context) error {
	a := s.app

	history, err := a.store.ReadMessages(ctx, s.conv.ID)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		return fmt.Errorf("nothing to regenerate")
	}

	_, err = a.loop.Regenerate(ctx, agent.RunInput{
		ConversationID: s.conv.ID,
		Model:          a.provider.GetModel(),
		Messages:       history,
	})
	return err
}

func (s *chatSession) handleCommand(ctx context.Context, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	command, args := fields[0], fields[1:]

	switch command {
	case "/quit", "/exit":
		return true, nil

	case "/help":
		fmt.Print(`commands:
  /new                      start a fresh conversation
  /regen                    regenerate the last response
  /model <name>             switch models
  /models                   list available models
  /tools                    list aggregated tools
  /servers                  list connected servers
  /pending                  list pending input requests
  /accept <id> [k=v ...]    answer a form request
  /decline <id>             decline an input request
  /confirm <id>             confirm a URL request
  /cancel <id>              cancel an input request
  /quit                     leave
`)
		return false, nil

	case "/new":
		conv := model.NewConversation(storage.GenerateConversationTitle(""), s.app.provider.GetModel())
		if err := s.app.store.CreateConversation(ctx, conv); err != nil {
			return false, err
		}
		if err := s.app.store.SaveCurrentConversationID(ctx, conv.ID); err != nil {
			return false, err
		}
		s.conv = &conv
		s.app.mediator.BindConversation(conv.ID)
		fmt.Printf("started conversation %s\n", conv.ID)
		return false, nil

	case "/regen":
		return false, s.regenerate(ctx)

	case "/model":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: /model <name>")
		}
		previous := s.app.provider.GetModel()
		s.app.provider.SetModel(args[0])
		if err := s.app.store.SetConversationModel(ctx, s.conv.ID, args[0]); err != nil {
			return false, err
		}
		marker := model.NewModelChangeMessage(s.conv.ID, previous, args[0])
		if err := s.app.store.AppendMessage(ctx, marker); err != nil {
			return false, err
		}
		fmt.Printf("switched to %s\n", args[0])
		return false, nil

	case "/models":
		models, err := s.app.provider.ListModels(ctx)
		if err != nil {
			return false, err
		}
		for _, m := range models {
			fmt.Println(m.Name)
		}
		return false, nil

	case "/tools":
		for _, tool := range s.app.manager.Catalog().Tools() {
			fmt.Printf("%s\t%s\n", tool.Name, tool.Description)
		}
		return false, nil

	case "/servers":
		for _, id := range s.app.manager.ServerIDs() {
			fmt.Println(id)
		}
		return false, nil

	case "/pending":
		for _, req := range s.app.mediator.Pending() {
			fmt.Printf("%v\t%s\t%s\n", req.ID, req.Mode, req.Message)
		}
		return false, nil

	case "/accept":
		if len(args) < 1 {
			return false, fmt.Errorf("usage: /accept <id> [field=value ...]")
		}
		content := make(map[string]any)
		for _, pair := range args[1:] {
			key, value, found := strings.Cut(pair, "=")
			if !found {
				return false, fmt.Errorf("expected field=value, got %q", pair)
			}
			content[key] = value
		}
		if err := s.app.mediator.Resolve(args[0], protocol.ElicitationAccept, content); err != nil {
			var verr *agent.ValidationError
			if errors.As(err, &verr) {
				for field, msg := range verr.Fields {
					fmt.Fprintf(os.Stderr, "  %s: %s\n", field, msg)
				}
				return false, fmt.Errorf("submission rejected, fix the fields and retry")
			}
			return false, err
		}
		return false, nil

	case "/decline":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: /decline <id>")
		}
		return false, s.app.mediator.Resolve(args[0], protocol.ElicitationDecline, nil)

	case "/confirm":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: /confirm <id>")
		}
		return false, s.app.mediator.ConfirmURL(args[0], true)

	case "/cancel":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: /cancel <id>")
		}
		return false, s.app.mediator.Resolve(args[0], protocol.ElicitationCancel, nil)

	default:
		return false, fmt.Errorf("unknown command %s, try /help", command)
	}
}
