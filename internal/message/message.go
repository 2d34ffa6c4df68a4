// Package message implements the pipeline shared by the REST and
// WebSocket send-message paths: validate, resolve reply context,
// persist, link attachments, and kick off link-preview fetching. It
// does not broadcast -- callers publish the resulting event
// themselves since the REST and WS paths have different semantics.
package message

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/iohzrd/echora/internal/apperror"
	"github.com/iohzrd/echora/internal/store"
	"github.com/iohzrd/echora/internal/validation"
)

// sanitizer strips any HTML a client might slip into message content
// before it is persisted; clients render content as plain text/
// markdown, never as raw HTML, so nothing is allowed through.
var sanitizer = bluemonday.StrictPolicy()

// LinkPreviewFetcher is implemented by the link-preview worker;
// CreateMessage spawns it as a detached goroutine, never awaiting it.
type LinkPreviewFetcher interface {
	FetchAsync(messageID, channelID uuid.UUID, content string)
}

type Pipeline struct {
	store     *store.Store
	previewer LinkPreviewFetcher
}

func New(st *store.Store, previewer LinkPreviewFetcher) *Pipeline {
	return &Pipeline{store: st, previewer: previewer}
}

// CreateParams bundles everything needed to persist and enrich a new message.
type CreateParams struct {
	UserID               uuid.UUID
	Username             string
	ChannelID            uuid.UUID
	Content              string
	ReplyToID            *uuid.UUID
	AttachmentIDs        []uuid.UUID
	ValidateReplyChannel bool
}

// Result pairs the persisted, enriched message with the channel it
// belongs to, for the caller to broadcast.
type Result struct {
	Message   *store.Message
	ChannelID uuid.UUID
}

func (p *Pipeline) CreateMessage(ctx context.Context, params CreateParams) (*Result, error) {
	hasAttachments := len(params.AttachmentIDs) > 0
	if err := validation.ValidateMessageContentOptional(params.Content, hasAttachments); err != nil {
		return nil, err
	}
	if len(params.AttachmentIDs) > validation.MaxAttachmentsPerMsg {
		return nil, apperror.BadRequestf("A message may have at most %d attachments", validation.MaxAttachmentsPerMsg)
	}

	replyCrossChannel := false
	if params.ReplyToID != nil {
		replied, err := p.store.GetMessageByID(ctx, *params.ReplyToID)
		if err != nil {
			return nil, err
		}
		if replied.ChannelID != params.ChannelID {
			if params.ValidateReplyChannel {
				return nil, apperror.BadRequestf("Cannot reply to a message in a different channel")
			}
			replyCrossChannel = true
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, apperror.Internalf(err, "generate message id")
	}
	now := time.Now().Unix()
	content := sanitizer.Sanitize(strings.TrimSpace(params.Content))

	m := &store.Message{
		ID:             id,
		Content:        content,
		AuthorID:       params.UserID,
		AuthorUsername: params.Username,
		ChannelID:      params.ChannelID,
		CreatedAt:      now,
		ReplyToID:      params.ReplyToID,
	}
	if err := p.store.CreateMessage(ctx, m); err != nil {
		return nil, err
	}

	if params.ReplyToID != nil && !replyCrossChannel {
		preview, err := p.store.GetReplyPreview(ctx, *params.ReplyToID)
		if err != nil {
			return nil, err
		}
		m.ReplyTo = preview
	}

	if hasAttachments {
		// Ids that fail the ownership/unclaimed predicate are dropped by
		// LinkAttachmentsToMessage itself; whatever subset matches comes
		// back and is attached, rather than discarding the whole batch.
		attachments, err := p.store.LinkAttachmentsToMessage(ctx, id, params.UserID, params.AttachmentIDs)
		if err != nil {
			return nil, err
		}
		m.Attachments = attachments
	}

	if content != "" && p.previewer != nil {
		p.previewer.FetchAsync(id, params.ChannelID, content)
	}

	return &Result{Message: m, ChannelID: params.ChannelID}, nil
}

func (p *Pipeline) EditMessage(ctx context.Context, id, actorID uuid.UUID, content string) (*store.Message, error) {
	if err := validation.ValidateMessageContent(content); err != nil {
		return nil, err
	}
	existing, err := p.store.GetMessageByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.AuthorID != actorID {
		return nil, apperror.Forbiddenf("You can only edit your own messages")
	}
	now := time.Now().Unix()
	if err := p.store.UpdateMessage(ctx, id, sanitizer.Sanitize(strings.TrimSpace(content)), now); err != nil {
		return nil, err
	}
	return p.store.GetFullMessageByID(ctx, id, actorID)
}

func (p *Pipeline) DeleteMessage(ctx context.Context, id uuid.UUID) error {
	return p.store.DeleteMessage(ctx, id)
}
