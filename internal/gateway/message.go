package gateway

import (
	"encoding/json"
	"strings"
)

// Message is one inbound chat message as the pipeline sees it. It exists
// only for the duration of one processing cycle and is never persisted
// verbatim.
type Message struct {
	ChannelInstanceID string `validate:"required"`
	ID                string `validate:"required"`
	SenderPhone       string `validate:"required"`
	SenderName        string
	Text              string
	Timestamp         int64 `validate:"gt=0"`
	FromMe            bool
}

// ConnectionState is the gateway-side health of a channel instance.
type ConnectionState struct {
	ChannelInstanceID string `json:"channelInstanceId"`
	Status            string `json:"status"`
}

// wireMessage is the gateway's JSON shape for a chat message.
type wireMessage struct {
	ID         string `json:"id"`
	From       string `json:"from"`
	SenderName string `json:"senderDisplayName"`
	Text       string `json:"text"`
	Timestamp  int64  `json:"timestamp"`
	FromMe     bool   `json:"fromMe"`
}

func (w wireMessage) toMessage(channelInstanceID string) Message {
	return Message{
		ChannelInstanceID: channelInstanceID,
		ID:                w.ID,
		SenderPhone:       SenderPhone(w.From),
		SenderName:        w.SenderName,
		Text:              w.Text,
		Timestamp:         w.Timestamp,
		FromMe:            w.FromMe,
	}
}

// ParseMessagePayload decodes a push-event payload into a Message. The push
// channel and the REST surface share one wire shape for chat messages.
func ParseMessagePayload(channelInstanceID string, raw []byte) (Message, error) {
	var wm wireMessage
	if err := json.Unmarshal(raw, &wm); err != nil {
		return Message{}, err
	}
	return wm.toMessage(channelInstanceID), nil
}

// SenderPhone strips the gateway's JID suffix from a sender identifier,
// e.g. "5511988887777@c.us" -> "5511988887777".
func SenderPhone(jid string) string {
	if idx := strings.IndexByte(jid, '@'); idx >= 0 {
		return jid[:idx]
	}
	return jid
}
