package main

import (
	"context"

	"github.com/block/storefront/internal/config"
	"github.com/block/storefront/internal/contact"
	"github.com/block/storefront/internal/feedback"
	"github.com/block/storefront/internal/graphql"
	"github.com/block/storefront/internal/terminal"
)

type contactCmd struct {
	List   contactListCmd   `cmd:"" default:"withargs" help:"List contact messages, newest first."`
	Send   contactSendCmd   `cmd:"" help:"Send a message through the contact form."`
	Delete contactDeleteCmd `cmd:"" help:"Delete a contact message."`
}

type contactListCmd struct {
	Pages int  `help:"Number of pages to load. Zero loads every page." default:"1"`
	JSON  bool `help:"Output JSON."`
}

func (c *contactListCmd) Run(ctx context.Context, client graphql.Executor, fb *feedback.Channel, cfg *config.Config, term *terminal.Terminal) error {
	inbox := contact.New(client, fb, cfg.ListPageSize())
	defer inbox.List.Close() //nolint:errcheck
	if err := inbox.Open(ctx); err != nil {
		return err
	}
	for page := 1; (c.Pages == 0 || page < c.Pages) && inbox.List.HasMore(); page++ {
		if err := inbox.LoadMore(ctx); err != nil {
			return err
		}
	}
	messages := inbox.List.Items()
	if c.JSON {
		return term.PrintValue(messages)
	}
	rows := make([][]string, 0, len(messages))
	for _, msg := range messages {
		rows = append(rows, []string{msg.ID, msg.Name, msg.Email, truncate(msg.Message, 60)})
	}
	term.Table([]string{"ID", "NAME", "EMAIL", "MESSAGE"}, rows)
	return nil
}

type contactSendCmd struct {
	Name    string `help:"Your name." required:""`
	Email   string `help:"Your email address."`
	Phone   string `help:"Your phone number."`
	Message string `arg:"" help:"Message text."`
}

func (c *contactSendCmd) Run(ctx context.Context, client graphql.Executor, fb *feedback.Channel, term *terminal.Terminal) error {
	msg, err := contact.New(client, fb, 0).Send(ctx, contact.Submission{Name: c.Name, Email: c.Email, Phone: c.Phone, Message: c.Message})
	if err != nil {
		return err
	}
	term.Printf("Message %s sent.\n", msg.ID)
	return nil
}

type contactDeleteCmd struct {
	ID string `arg:"" help:"Message ID."`
}

func (c *contactDeleteCmd) Run(ctx context.Context, client graphql.Executor, fb *feedback.Channel, term *terminal.Terminal) error {
	deleted, err := contact.New(client, fb, 0).Delete(ctx, c.ID)
	if err != nil {
		return err
	}
	if deleted {
		term.Printf("Message %s deleted.\n", c.ID)
	} else {
		term.Printf("Kept message %s.\n", c.ID)
	}
	return nil
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
