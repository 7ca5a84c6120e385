package models

// ConversationSummary is one entry of a user's conversation list. It is
// computed on every request and never stored.
type ConversationSummary struct {
	ConversationID string      `json:"conversationId"`
	IsGroup        bool        `json:"isGroup"`
	LastMessage    LastMessage `json:"lastMessage"`

	// direct conversations only
	OtherParticipantEmail    string `json:"otherParticipantEmail,omitempty"`
	OtherParticipantUsername string `json:"otherParticipantUsername,omitempty"`
	OtherParticipantAvatar   string `json:"otherParticipantAvatar,omitempty"`
	UnreadCount              *int64 `json:"unreadCount,omitempty"`
	FromMe                   *bool  `json:"fromMe,omitempty"`
	RecipientSeen            *bool  `json:"recipientSeen,omitempty"`

	// group conversations only
	GroupID   uint   `json:"groupId,omitempty"`
	GroupName string `json:"groupName,omitempty"`
}

type LastMessage struct {
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}
