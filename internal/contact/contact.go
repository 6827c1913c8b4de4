// Package contact is the contact form and the back-office message inbox.
package contact

import (
	"context"
	"fmt"

	"github.com/block/storefront/internal/apierror"
	"github.com/block/storefront/internal/feedback"
	"github.com/block/storefront/internal/graphql"
	"github.com/block/storefront/internal/log"
	"github.com/block/storefront/internal/paging"
)

// DefaultPageSize matches the server's default limit.
const DefaultPageSize = 20

type Message struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Message string `json:"message"`
	Handled bool   `json:"handled"`
}

// Submission is a new message from the contact form.
type Submission struct {
	Name    string
	Email   string
	Phone   string
	Message string
}

// Inbox drives the contact message list.
type Inbox struct {
	client   graphql.Executor
	feedback *feedback.Channel

	// List is the accumulated message list. It has no filters.
	List *paging.Accumulator[Message, struct{}]
}

func New(client graphql.Executor, fb *feedback.Channel, pageSize int) *Inbox {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	i := &Inbox{client: client, feedback: fb}
	i.List = paging.New("contact", pageSize, i.fetch)
	return i
}

// Open loads the first page of messages.
func (i *Inbox) Open(ctx context.Context) error {
	return i.report(ctx, i.List.Load(ctx, struct{}{}))
}

// LoadMore appends the next page of messages.
func (i *Inbox) LoadMore(ctx context.Context) error {
	return i.report(ctx, i.List.LoadMore(ctx))
}

func (i *Inbox) fetch(ctx context.Context, _ struct{}, offset, limit int) (paging.Page[Message], error) {
	result, err := graphql.QueryInto[struct {
		ContactMessages []Message `json:"contactMessages"`
	}](ctx, i.client, messagesQuery, graphql.Variables{
		"limit":  graphql.Int(limit),
		"offset": graphql.Int(offset),
	})
	if err != nil {
		return paging.Page[Message]{}, err
	}
	return paging.Page[Message]{Items: result.ContactMessages}, nil
}

// Delete removes a message after the user confirms. It reports whether the
// message was deleted; declining is not an error.
func (i *Inbox) Delete(ctx context.Context, id string) (bool, error) {
	ok, err := i.feedback.Confirm(ctx, "Delete message %s?", id)
	if err != nil {
		return false, err
	}
	if !ok {
		log.FromContext(ctx).Scope("contact").Debugf("deletion of message %s declined", id)
		return false, nil
	}
	result, err := graphql.MutateInto[struct {
		DeleteContactMessage struct {
			Success bool `json:"success"`
		} `json:"deleteContactMessage"`
	}](ctx, i.client, deleteMutation, graphql.Variables{"id": graphql.ID(id)})
	if err != nil {
		return false, i.report(ctx, fmt.Errorf("failed to delete message %s: %w", id, err))
	}
	if err := apierror.CheckSuccess(result.DeleteContactMessage.Success, "deleteContactMessage"); err != nil {
		return false, i.report(ctx, err)
	}
	if i.List.View().State != paging.Idle {
		if err := i.List.Reload(ctx); err != nil {
			return true, i.report(ctx, err)
		}
	}
	return true, nil
}

// Send submits the contact form.
func (i *Inbox) Send(ctx context.Context, submission Submission) (Message, error) {
	result, err := graphql.MutateInto[struct {
		CreateContactMessage struct {
			Success        bool     `json:"success"`
			ContactMessage *Message `json:"contactMessage"`
		} `json:"createContactMessage"`
	}](ctx, i.client, createMutation, graphql.Variables{
		"name":    graphql.String(submission.Name),
		"email":   graphql.OptionalString(submission.Email),
		"phone":   graphql.OptionalString(submission.Phone),
		"message": graphql.String(submission.Message),
	})
	if err != nil {
		return Message{}, i.report(ctx, fmt.Errorf("failed to send message: %w", err))
	}
	payload := result.CreateContactMessage
	if err := apierror.CheckSuccess(payload.Success, "createContactMessage"); err != nil {
		return Message{}, i.report(ctx, err)
	}
	if payload.ContactMessage == nil {
		return Message{}, i.report(ctx, fmt.Errorf("failed to send message: %w", graphql.ErrMalformedResponse))
	}
	return *payload.ContactMessage, nil
}

func (i *Inbox) report(ctx context.Context, err error) error {
	if err != nil {
		i.feedback.Report(ctx, err)
	}
	return err
}

const messageFields = `id name email phone message handled`

const (
	messagesQuery = `query ContactMessages($limit: Int, $offset: Int) {
  contactMessages(limit: $limit, offset: $offset) { ` + messageFields + ` }
}`
	deleteMutation = `mutation DeleteContactMessage($id: ID!) {
  deleteContactMessage(id: $id) { success }
}`
	createMutation = `mutation CreateContactMessage($name: String!, $email: String, $phone: String, $message: String!) {
  createContactMessage(name: $name, email: $email, phone: $phone, message: $message) { success contactMessage { ` + messageFields + ` } }
}`
)
