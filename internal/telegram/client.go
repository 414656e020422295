// Package telegram adapts the bot API to the relay: it sends through telego
// and turns incoming updates into model.Update values.
package telegram

import (
	"context"
	"fmt"

	"github.com/mymmrac/telego"
	"github.com/rs/zerolog/log"

	"github.com/Jlypx/BetterForward-enhance/internal/metrics"
	"github.com/Jlypx/BetterForward-enhance/internal/model"
	"github.com/Jlypx/BetterForward-enhance/internal/relay"
)

const defaultAPIServer = "https://api.telegram.org"

// botAPI lists the telego calls the client makes.
type botAPI interface {
	GetMe(ctx context.Context) (*telego.User, error)
	CreateForumTopic(ctx context.Context, params *telego.CreateForumTopicParams) (*telego.ForumTopic, error)
	CopyMessage(ctx context.Context, params *telego.CopyMessageParams) (*telego.MessageID, error)
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
	PinChatMessage(ctx context.Context, params *telego.PinChatMessageParams) error
	CloseForumTopic(ctx context.Context, params *telego.CloseForumTopicParams) error
	EditMessageText(ctx context.Context, params *telego.EditMessageTextParams) (*telego.Message, error)
	EditMessageCaption(ctx context.Context, params *telego.EditMessageCaptionParams) (*telego.Message, error)
	SetWebhook(ctx context.Context, params *telego.SetWebhookParams) error
	DeleteWebhook(ctx context.Context, params *telego.DeleteWebhookParams) error
	UpdatesViaLongPolling(ctx context.Context, params *telego.GetUpdatesParams, options ...telego.LongPollingOption) (<-chan telego.Update, error)
}

// Client implements relay.Transport on top of the bot API.
type Client struct {
	bot botAPI
}

var _ relay.Transport = (*Client)(nil)

// NewClient builds a bot for token. apiServer may point at a self-hosted
// bot API server; empty means the public one.
func NewClient(token, apiServer string) (*Client, error) {
	opts := []telego.BotOption{telego.WithDiscardLogger()}
	if apiServer != "" && apiServer != defaultAPIServer {
		opts = append(opts, telego.WithAPIServer(apiServer))
	}

	bot, err := telego.NewBot(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return &Client{bot: bot}, nil
}

// Identify checks the token against the API and returns the bot account.
func (c *Client) Identify(ctx context.Context) (model.User, error) {
	me, err := c.bot.GetMe(ctx)
	if err != nil {
		return model.User{}, classify("getMe", 0, err)
	}
	return convertUser(*me), nil
}

func (c *Client) CreateTopic(ctx context.Context, groupID int64, name string) (int64, error) {
	topic, err := c.bot.CreateForumTopic(ctx, &telego.CreateForumTopicParams{
		ChatID: telego.ChatID{ID: groupID},
		Name:   name,
	})
	if err = observe("createForumTopic", 0, err); err != nil {
		return 0, err
	}
	return int64(topic.MessageThreadID), nil
}

func (c *Client) CopyMessage(ctx context.Context, req relay.CopyRequest) (int64, error) {
	params := &telego.CopyMessageParams{
		ChatID:          telego.ChatID{ID: req.ToChatID},
		MessageThreadID: int(req.ThreadID),
		FromChatID:      telego.ChatID{ID: req.FromChatID},
		MessageID:       int(req.MessageID),
	}
	if req.ReplyToID != 0 {
		params.ReplyParameters = replyTo(req.ReplyToID)
	}

	id, err := c.bot.CopyMessage(ctx, params)
	if err = observe("copyMessage", req.ThreadID, err); err != nil {
		return 0, err
	}
	return int64(id.MessageID), nil
}

func (c *Client) SendText(ctx context.Context, req relay.TextRequest) (int64, error) {
	params := &telego.SendMessageParams{
		ChatID:          telego.ChatID{ID: req.ChatID},
		MessageThreadID: int(req.ThreadID),
		Text:            req.Text,
	}
	if req.ReplyToID != 0 {
		params.ReplyParameters = replyTo(req.ReplyToID)
	}

	msg, err := c.bot.SendMessage(ctx, params)
	if err = observe("sendMessage", req.ThreadID, err); err != nil {
		return 0, err
	}
	return int64(msg.MessageID), nil
}

func (c *Client) PinMessage(ctx context.Context, chatID, messageID int64) error {
	err := c.bot.PinChatMessage(ctx, &telego.PinChatMessageParams{
		ChatID:              telego.ChatID{ID: chatID},
		MessageID:           int(messageID),
		DisableNotification: true,
	})
	return observe("pinChatMessage", 0, err)
}

func (c *Client) CloseTopic(ctx context.Context, groupID, topicID int64) error {
	err := c.bot.CloseForumTopic(ctx, &telego.CloseForumTopicParams{
		ChatID:          telego.ChatID{ID: groupID},
		MessageThreadID: int(topicID),
	})
	return observe("closeForumTopic", topicID, err)
}

func (c *Client) EditText(ctx context.Context, chatID, messageID int64, text string) error {
	_, err := c.bot.EditMessageText(ctx, &telego.EditMessageTextParams{
		ChatID:    telego.ChatID{ID: chatID},
		MessageID: int(messageID),
		Text:      text,
	})
	return observe("editMessageText", 0, err)
}

func (c *Client) EditCaption(ctx context.Context, chatID, messageID int64, caption string) error {
	_, err := c.bot.EditMessageCaption(ctx, &telego.EditMessageCaptionParams{
		ChatID:    telego.ChatID{ID: chatID},
		MessageID: int(messageID),
		Caption:   caption,
	})
	return observe("editMessageCaption", 0, err)
}

// SetWebhook registers url with the bot API. Updates then arrive over HTTP
// with secret in the X-Telegram-Bot-Api-Secret-Token header.
func (c *Client) SetWebhook(ctx context.Context, url, secret string) error {
	err := c.bot.SetWebhook(ctx, &telego.SetWebhookParams{
		URL:            url,
		SecretToken:    secret,
		AllowedUpdates: allowedUpdates,
	})
	if err != nil {
		return classify("setWebhook", 0, err)
	}
	log.Info().Str("url", url).Msg("webhook registered")
	return nil
}

func (c *Client) DeleteWebhook(ctx context.Context) error {
	if err := c.bot.DeleteWebhook(ctx, &telego.DeleteWebhookParams{}); err != nil {
		return classify("deleteWebhook", 0, err)
	}
	return nil
}

func replyTo(messageID int64) *telego.ReplyParameters {
	return &telego.ReplyParameters{
		MessageID:                int(messageID),
		AllowSendingWithoutReply: true,
	}
}

// observe counts the call and classifies its error.
func observe(method string, threadID int64, err error) error {
	if err == nil {
		metrics.IncTransportCall(method, "ok")
		return nil
	}
	classified := classify(method, threadID, err)
	metrics.IncTransportCall(method, "error")
	log.Debug().Err(classified).Str("method", method).Msg("bot API call failed")
	return classified
}
