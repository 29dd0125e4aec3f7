// Package slack adapts the Slack Web API to the pipeline's thread-source
// contract.
package slack

import (
	"context"
	"io"
	"strings"
	"sync"

	slackapi "github.com/slack-go/slack"

	"github.com/35services/slack-2-wordpress/internal/errors"
	"github.com/35services/slack-2-wordpress/internal/thread"
)

// pageSize is the page size used for history and replies calls.
const pageSize = 200

// Client wraps the Slack Web API client. Display-name lookups are cached for
// the client's lifetime.
type Client struct {
	api *slackapi.Client

	mu    sync.Mutex
	names map[string]string
}

// NewClient creates a Client authenticated with a bot token.
func NewClient(token string) *Client {
	return &Client{
		api:   slackapi.New(token),
		names: make(map[string]string),
	}
}

// ValidateChannel confirms the channel exists and is visible to the token.
func (c *Client) ValidateChannel(ctx context.Context, channelID string) error {
	_, err := c.api.GetConversationInfoContext(ctx, &slackapi.GetConversationInfoInput{
		ChannelID: channelID,
	})
	if err != nil {
		return mapError(err, channelID)
	}
	return nil
}

// ListThreads returns the channel's thread roots: messages whose own
// timestamp equals their thread-root timestamp. Replies surfaced by the
// history endpoint are dropped.
func (c *Client) ListThreads(ctx context.Context, channelID string) ([]thread.Message, error) {
	var roots []thread.Message
	cursor := ""

	for {
		resp, err := c.api.GetConversationHistoryContext(ctx, &slackapi.GetConversationHistoryParameters{
			ChannelID: channelID,
			Cursor:    cursor,
			Limit:     pageSize,
		})
		if err != nil {
			return nil, mapError(err, channelID)
		}

		for _, msg := range resp.Messages {
			m := convertMessage(msg)
			if m.IsThreadRoot() {
				roots = append(roots, m)
			}
		}

		cursor = resp.ResponseMetaData.NextCursor
		if cursor == "" {
			break
		}
	}

	return roots, nil
}

// ListMessages returns a thread's messages in order, root first.
func (c *Client) ListMessages(ctx context.Context, channelID, threadTimestamp string) ([]thread.Message, error) {
	var messages []thread.Message
	cursor := ""

	for {
		msgs, hasMore, nextCursor, err := c.api.GetConversationRepliesContext(ctx, &slackapi.GetConversationRepliesParameters{
			ChannelID: channelID,
			Timestamp: threadTimestamp,
			Cursor:    cursor,
			Limit:     pageSize,
		})
		if err != nil {
			return nil, mapError(err, channelID)
		}

		for _, msg := range msgs {
			messages = append(messages, convertMessage(msg))
		}

		if !hasMore {
			break
		}
		cursor = nextCursor
	}

	return messages, nil
}

// ResolveUserName resolves a user id to a display name, caching results.
// Resolution failures fall back to the raw id; a transcript with user ids
// beats no transcript.
func (c *Client) ResolveUserName(ctx context.Context, userID string) string {
	c.mu.Lock()
	if name, ok := c.names[userID]; ok {
		c.mu.Unlock()
		return name
	}
	c.mu.Unlock()

	name := userID
	if user, err := c.api.GetUserInfoContext(ctx, userID); err == nil {
		switch {
		case user.Profile.DisplayName != "":
			name = user.Profile.DisplayName
		case user.RealName != "":
			name = user.RealName
		case user.Name != "":
			name = user.Name
		}
	}

	c.mu.Lock()
	c.names[userID] = name
	c.mu.Unlock()
	return name
}

// DownloadFile streams an attachment's authenticated download URL to w.
func (c *Client) DownloadFile(ctx context.Context, url string, w io.Writer) error {
	return c.api.GetFileContext(ctx, url, w)
}

// convertMessage maps a Slack message onto the provider-agnostic model.
func convertMessage(msg slackapi.Message) thread.Message {
	m := thread.Message{
		Timestamp:       msg.Timestamp,
		ThreadTimestamp: msg.ThreadTimestamp,
		AuthorID:        msg.User,
		Text:            msg.Text,
	}
	for _, f := range msg.Files {
		url := f.URLPrivateDownload
		if url == "" {
			url = f.URLPrivate
		}
		m.Files = append(m.Files, thread.File{
			ID:          f.ID,
			Name:        f.Name,
			MimeType:    f.Mimetype,
			DownloadURL: url,
		})
	}
	return m
}

// mapError translates Slack API error strings into structured errors.
func mapError(err error, channelID string) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "invalid_auth"), strings.Contains(msg, "not_authed"), strings.Contains(msg, "token_revoked"):
		return errors.NewAuthFailed("slack")
	case strings.Contains(msg, "missing_scope"):
		return errors.NewPermissionDenied("slack", msg)
	case strings.Contains(msg, "channel_not_found"), strings.Contains(msg, "not_in_channel"):
		return errors.NewChannelUnreachable(channelID, err)
	default:
		return errors.NewInternal(err)
	}
}
