// Package i18n holds the handful of texts the bot writes on its own.
package i18n

import (
	"strings"

	goi18n "github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/language"
)

type Key = string

const (
	KeyStart          Key = "start"
	KeyInfoCard       Key = "info_card"
	KeyChatNotFound   Key = "chat_not_found"
	KeyUserLeft       Key = "user_left"
	KeyUserReturned   Key = "user_returned"
	KeyDeliveryFailed Key = "delivery_failed"
	KeyBanned         Key = "banned"
	KeyUnbanned       Key = "unbanned"
	KeyStatus         Key = "status"
)

// Data fills the named fields of a message template.
type Data map[string]any

var supported = []language.Tag{
	language.English,
	language.SimplifiedChinese,
	language.Japanese,
}

var matcher = language.NewMatcher(supported)

var messages = map[language.Tag][]*goi18n.Message{
	language.English: {
		{ID: KeyStart, Other: "Hello! Send a message here and our team will reply as soon as possible."},
		{ID: KeyInfoCard, Other: "User: {{.Name}}\nID: {{.ChatID}}\nUsername: {{.Username}}"},
		{ID: KeyChatNotFound, Other: "No user is linked to this topic. Closing it."},
		{ID: KeyUserLeft, Other: "The user has blocked the bot. Replies will not be delivered."},
		{ID: KeyUserReturned, Other: "The user has restarted the bot."},
		{ID: KeyDeliveryFailed, Other: "Message was not delivered: {{.Reason}}"},
		{ID: KeyBanned, Other: "User banned. Their messages will be dropped."},
		{ID: KeyUnbanned, Other: "User unbanned."},
		{ID: KeyStatus, Other: "ID: {{.ChatID}}\nName: {{.Name}}\nUsername: {{.Username}}\nBlocked: {{.Blocked}}\nFirst seen: {{.CreatedAt}}\nLast message: {{.LastMessageAt}}"},
	},
	language.SimplifiedChinese: {
		{ID: KeyStart, Other: "你好！请直接在这里发送消息，我们会尽快回复。"},
		{ID: KeyInfoCard, Other: "用户：{{.Name}}\nID：{{.ChatID}}\n用户名：{{.Username}}"},
		{ID: KeyChatNotFound, Other: "此话题没有关联的用户，即将关闭。"},
		{ID: KeyUserLeft, Other: "用户已屏蔽机器人，回复将无法送达。"},
		{ID: KeyUserReturned, Other: "用户已重新启动机器人。"},
		{ID: KeyDeliveryFailed, Other: "消息未能送达：{{.Reason}}"},
		{ID: KeyBanned, Other: "已封禁该用户，其消息将被丢弃。"},
		{ID: KeyUnbanned, Other: "已解除封禁。"},
		{ID: KeyStatus, Other: "ID：{{.ChatID}}\n名称：{{.Name}}\n用户名：{{.Username}}\n已封禁：{{.Blocked}}\n首次联系：{{.CreatedAt}}\n最后消息：{{.LastMessageAt}}"},
	},
	language.Japanese: {
		{ID: KeyStart, Other: "こんにちは！ここにメッセージを送ってください。担当者がすぐに返信します。"},
		{ID: KeyInfoCard, Other: "ユーザー：{{.Name}}\nID：{{.ChatID}}\nユーザー名：{{.Username}}"},
		{ID: KeyChatNotFound, Other: "このトピックに紐づくユーザーがいません。トピックを閉じます。"},
		{ID: KeyUserLeft, Other: "ユーザーがボットをブロックしました。返信は届きません。"},
		{ID: KeyUserReturned, Other: "ユーザーがボットを再開しました。"},
		{ID: KeyDeliveryFailed, Other: "メッセージを配信できませんでした：{{.Reason}}"},
		{ID: KeyBanned, Other: "ユーザーをブロックしました。メッセージは破棄されます。"},
		{ID: KeyUnbanned, Other: "ブロックを解除しました。"},
		{ID: KeyStatus, Other: "ID：{{.ChatID}}\n名前：{{.Name}}\nユーザー名：{{.Username}}\nブロック中：{{.Blocked}}\n初回：{{.CreatedAt}}\n最終メッセージ：{{.LastMessageAt}}"},
	},
}

var bundle = newBundle()

func newBundle() *goi18n.Bundle {
	b := goi18n.NewBundle(language.English)
	for tag, msgs := range messages {
		if err := b.AddMessages(tag, msgs...); err != nil {
			panic(err)
		}
	}
	return b
}

// Catalog is immutable after New.
type Catalog struct {
	tag       language.Tag
	localizer *goi18n.Localizer
}

// New picks the closest supported language for a tag such as "en_US" or
// "zh-CN". Unknown tags fall back to English.
func New(locale string) *Catalog {
	tag, err := language.Parse(strings.ReplaceAll(strings.TrimSpace(locale), "_", "-"))
	if err != nil {
		tag = language.English
	}
	_, idx, _ := matcher.Match(tag)
	base := supported[idx]
	return &Catalog{tag: base, localizer: goi18n.NewLocalizer(bundle, base.String())}
}

func (c *Catalog) Tag() language.Tag {
	return c.tag
}

// T returns the message for key. Missing translations fall back to English.
func (c *Catalog) T(key Key) string {
	return c.Format(key, nil)
}

// Format renders the message for key with data.
func (c *Catalog) Format(key Key, data Data) string {
	text, err := c.localizer.Localize(&goi18n.LocalizeConfig{
		MessageID:    key,
		TemplateData: map[string]any(data),
	})
	if err != nil {
		log.Warn().Err(err).Str("key", key).Str("lang", c.tag.String()).Msg("message lookup failed")
	}
	return text
}
