package tasksync

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Abdirhman569167/astaan-dubing-sub000/internal/utils"
)

type rawChatMessage struct {
	ID         flexInt   `json:"id"`
	ProjectID  flexInt   `json:"project_id"`
	SenderID   flexInt   `json:"sender_id"`
	SenderName *string   `json:"sender_name"`
	Message    *string   `json:"message"`
	FileURL    *string   `json:"file_url"`
	CreatedAt  Timestamp `json:"created_at"`
}

func normalizeChatMessage(r rawChatMessage) ChatMessage {
	return ChatMessage{
		ID:         int64(r.ID),
		ProjectID:  int64(r.ProjectID),
		SenderID:   int64(r.SenderID),
		SenderName: str(r.SenderName),
		Message:    str(r.Message),
		FileURL:    str(r.FileURL),
		CreatedAt:  r.CreatedAt,
	}
}

type ChatSend struct {
	ProjectID  int64
	SenderID   int64
	SenderName string
	Message    string
	File       *Attachment
}

// Chat is the project conversation of a view.
type Chat struct {
	ds     *Downstream
	bearer string
	store  *Store
	notify Notifier
	sched  Scheduler
	delays Delays
	base   context.Context
	log    *logrus.Logger
}

func NewChat(ds *Downstream, bearer string, opts MutatorOptions) *Chat {
	if opts.Scheduler == nil {
		opts.Scheduler = opts.Store
	}
	if opts.Base == nil {
		opts.Base = context.Background()
	}
	return &Chat{
		ds:     ds,
		bearer: bearer,
		store:  opts.Store,
		notify: opts.Notifier,
		sched:  opts.Scheduler,
		delays: opts.Delays,
		base:   opts.Base,
		log:    ds.log,
	}
}

// Load replaces the cached conversation, pending messages included.
func (c *Chat) Load(ctx context.Context, projectID int64) ([]ChatMessage, error) {
	const op = "fetch chat"
	resp, err := c.ds.do(ctx, call{
		op:      op,
		service: svcChat,
		method:  http.MethodGet,
		path:    fmt.Sprintf("/chat/%d", projectID),
		bearer:  c.bearer,
	})
	if err != nil {
		if notFoundMessage(err) {
			c.store.SetChat(projectID, []ChatMessage{})
			return []ChatMessage{}, nil
		}
		c.log.WithField("project", projectID).Warnf("failed to load chat: %v", err)
		return c.store.Chat(projectID), err
	}

	raws, ok := decodeList[rawChatMessage](resp.Body(), "messages")
	if !ok {
		if bodySaysNotFound(resp.Body()) {
			c.store.SetChat(projectID, []ChatMessage{})
			return []ChatMessage{}, nil
		}
		return c.store.Chat(projectID), &Error{Kind: KindContract, Op: op, Status: statusOf(resp), Message: "unexpected chat response"}
	}
	msgs := utils.Map(raws, normalizeChatMessage)
	c.store.SetChat(projectID, msgs)
	return msgs, nil
}

// Send posts a message with an explicit timeout. The message shows up at once
// as pending; on failure it is withdrawn and the input restored as the draft.
func (c *Chat) Send(ctx context.Context, s ChatSend) error {
	const op = "send chat message"
	text := strings.TrimSpace(s.Message)
	if text == "" && s.File == nil {
		err := validationError(op, ErrEmptyChatSubmit)
		notifyError(c.notify, err, "Type a message first")
		return err
	}

	draft := ChatDraft{Message: s.Message}
	if s.File != nil {
		draft.FileName = s.File.Name
	}
	localID := uuid.NewString()
	c.store.SetDraft(s.ProjectID, ChatDraft{})
	c.store.AppendChat(s.ProjectID, ChatMessage{
		ProjectID:  s.ProjectID,
		SenderID:   s.SenderID,
		SenderName: s.SenderName,
		Message:    text,
		CreatedAt:  Timestamp{time.Now().UTC()},
		Pending:    true,
		LocalID:    localID,
	})

	form := url.Values{}
	form.Set("project_id", strconv.FormatInt(s.ProjectID, 10))
	form.Set("sender_id", strconv.FormatInt(s.SenderID, 10))
	form.Set("message", text)
	var files []filePart
	if s.File != nil && s.File.Reader != nil {
		files = append(files, filePart{Field: "file", Name: s.File.Name, Reader: s.File.Reader})
	}

	_, err := c.ds.do(ctx, call{
		op:      op,
		service: svcChat,
		method:  http.MethodPost,
		path:    "/chat/send",
		bearer:  c.bearer,
		timeout: c.delays.ChatTimeout,
		form:    form,
		files:   files,
	})
	if err != nil {
		c.store.DropPendingChat(s.ProjectID, localID)
		c.store.SetDraft(s.ProjectID, draft)
		c.log.WithFields(logrus.Fields{"project": s.ProjectID, "kind": KindOf(err)}).Warnf("chat send failed: %v", err)
		notifyError(c.notify, err, "Failed to send message")
		return err
	}

	for _, d := range c.delays.ChatRefresh {
		c.sched.After(d, func() {
			_, _ = c.Load(c.base, s.ProjectID)
		})
	}
	return nil
}
