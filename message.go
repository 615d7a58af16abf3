package kephaschat

import "time"

// Media describes an attachment. The file itself lives in external storage;
// the relay only carries its descriptor.
type Media struct {
	Type     string    `json:"type"`
	URL      string    `json:"url"`
	FileName string    `json:"fileName,omitempty"`
	Size     int64     `json:"size,omitempty"`
	Duration float64   `json:"duration,omitempty"`
	Waveform []float64 `json:"waveform,omitempty"`
}

// ReplyRef points at the message being replied to, with its sender and text
// cached so clients can render the quote without a lookup.
type ReplyRef struct {
	MessageID string `json:"messageId"`
	Text      string `json:"text,omitempty"`
	Sender    string `json:"sender,omitempty"`
}

// Message is a direct message between two identities.
type Message struct {
	ID            string
	From          string
	To            string
	Text          string
	Media         *Media
	ReplyTo       *ReplyRef
	Forwarded     bool
	ForwardedFrom string
	Read          bool
	CreatedAt     time.Time
	EditedAt      *time.Time
}

// Pin is the pinned message of a conversation.
type Pin struct {
	PinnedBy    string    `json:"pinnedBy"`
	Peer        string    `json:"peer"`
	MessageID   string    `json:"messageId"`
	MessageText string    `json:"messageText"`
	PinnedAt    time.Time `json:"pinnedAt"`
}
