package websocket

// Client-to-server and server-to-client frame types.
const (
	TypePing               = "ping"
	TypePong               = "pong"
	TypeJoinConversation   = "join_conversation"
	TypeLeaveConversation  = "leave_conversation"
	TypeMarkRead           = "mark_read"
	TypeTyping             = "typing"
	TypeConversationList   = "conversation_list"
	TypeMessageWindow      = "message_window"
	TypeNewMessage         = "new_message"
	TypeConversationUpdate = "conversation_update"
	TypeReadReceipt        = "read_receipt"
	TypeTypingIndicator    = "typing_indicator"
	TypeError              = "error"
)

// Frame is the envelope for every WebSocket exchange.
type Frame struct {
	Type           string      `json:"type"`
	ConversationID string      `json:"conversation_id,omitempty"`
	Data           interface{} `json:"data,omitempty"`
	Timestamp      string      `json:"timestamp"`
}

type TypingData struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	IsTyping       bool   `json:"is_typing"`
}

type ReadReceiptData struct {
	ConversationID string `json:"conversation_id"`
	ReaderID       string `json:"reader_id"`
}
