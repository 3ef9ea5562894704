package greenapi

import (
	"encoding/json"
	"errors"
	"strings"

	"selfiebot/pkg/domain"
)

const (
	TypeIncomingMessage = "incomingMessageReceived"
	TypeOutgoingMessage = "outgoingMessageReceived"
)

// ErrMalformedWebhook is returned for bodies missing the required envelope.
var ErrMalformedWebhook = errors.New("malformed webhook payload")

// Webhook is the subset of a GreenAPI notification the bot reads.
type Webhook struct {
	TypeWebhook string `json:"typeWebhook"`
	IDMessage   string `json:"idMessage"`
	SenderData  struct {
		ChatID string `json:"chatId"`
		Sender string `json:"sender"`
	} `json:"senderData"`
	MessageData *MessageData `json:"messageData"`
}

type MessageData struct {
	TypeMessage     string `json:"typeMessage"`
	DownloadURL     string `json:"downloadUrl"`
	TextMessageData struct {
		TextMessage string `json:"textMessage"`
	} `json:"textMessageData"`
	ExtendedTextMessageData struct {
		Text string `json:"text"`
	} `json:"extendedTextMessageData"`
	FileMessageData struct {
		DownloadURL string `json:"downloadUrl"`
		MimeType    string `json:"mimeType"`
		Caption     string `json:"caption"`
	} `json:"fileMessageData"`
}

// ParseWebhook decodes a notification and checks the required fields.
func ParseWebhook(body []byte) (Webhook, error) {
	var wh Webhook
	if err := json.Unmarshal(body, &wh); err != nil {
		return Webhook{}, ErrMalformedWebhook
	}
	if strings.TrimSpace(wh.TypeWebhook) == "" || strings.TrimSpace(wh.SenderData.ChatID) == "" || wh.MessageData == nil {
		return Webhook{}, ErrMalformedWebhook
	}
	return wh, nil
}

// Event normalizes the notification into an inbound event.
func (w Webhook) Event() domain.InboundEvent {
	ev := domain.InboundEvent{
		UserID:    UserID(w.SenderData.ChatID),
		MessageID: strings.TrimSpace(w.IDMessage),
		Kind:      domain.KindOther,
	}
	md := w.MessageData
	if md == nil {
		return ev
	}
	switch md.TypeMessage {
	case "textMessage":
		ev.Kind = domain.KindText
		ev.Text = md.TextMessageData.TextMessage
	case "extendedTextMessage", "quotedMessage":
		ev.Kind = domain.KindText
		ev.Text = md.ExtendedTextMessageData.Text
	case "imageMessage":
		ev.Kind = domain.KindImage
		ev.DownloadURL = md.DownloadURL
		if ev.DownloadURL == "" {
			ev.DownloadURL = md.FileMessageData.DownloadURL
		}
		ev.MimeType = md.FileMessageData.MimeType
		if ev.MimeType == "" {
			ev.MimeType = "image/jpeg"
		}
	}
	return ev
}
