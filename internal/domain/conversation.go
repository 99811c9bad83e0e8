package domain

import (
	"strings"
	"time"
)

// Channel identifies the transport a chat arrived on.
type Channel string

const (
	ChannelTelegram Channel = "telegram"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelWeb      Channel = "web"
)

var channelPrefixes = map[Channel]string{
	ChannelTelegram: "tg_",
	ChannelWhatsApp: "wa_",
	ChannelWeb:      "web_",
}

// ParseChannel maps a free-form channel name to a known Channel.
func ParseChannel(s string) (Channel, bool) {
	switch Channel(strings.ToLower(strings.TrimSpace(s))) {
	case ChannelTelegram:
		return ChannelTelegram, true
	case ChannelWhatsApp:
		return ChannelWhatsApp, true
	case ChannelWeb:
		return ChannelWeb, true
	}
	return "", false
}

// ChatKey returns the channel-prefixed chat id so the same raw id coming from
// two transports never shares a session. Ids that already carry the prefix are
// returned unchanged.
func ChatKey(ch Channel, rawID string) string {
	rawID = strings.TrimSpace(rawID)
	prefix := channelPrefixes[ch]
	if prefix == "" || strings.HasPrefix(rawID, prefix) {
		return rawID
	}
	return prefix + rawID
}

// ChannelFromChatID recovers the channel from a prefixed chat id. Unprefixed
// ids are attributed to telegram, which historically used bare numeric ids.
func ChannelFromChatID(chatID string) Channel {
	for ch, prefix := range channelPrefixes {
		if strings.HasPrefix(chatID, prefix) {
			return ch
		}
	}
	return ChannelTelegram
}

// Turn is a single role-tagged message in a conversation.
type Turn struct {
	Role      string
	Content   string
	Timestamp time.Time
}

// Message converts the turn to the backend wire shape.
func (t Turn) Message() ChatMessage {
	return ChatMessage{Role: t.Role, Content: t.Content}
}

// ChatSession is the per-chat conversation state.
type ChatSession struct {
	ChatID    string
	Channel   Channel
	Turns     []Turn
	UpdatedAt time.Time
}

// ChatRecord is one append-only write to the persistence sink: the
// user/assistant pair produced by a completed turn.
type ChatRecord struct {
	ChatID  string
	Channel Channel
	Turns   []Turn
}
