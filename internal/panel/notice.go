package panel

// Notice texts shown when an operation fails.
const (
	NoticeSendFailed   = "Failed to send message. Please try again."
	NoticeLoadFailed   = "Failed to load conversation. Please try again."
	NoticeSearchFailed = "Failed to process search query. Please try again."
)

// Default titles for the active session.
const (
	TitleNewConversation = "New Conversation"
	TitleConversation    = "Conversation"
)

// NoticeVariant selects how a notice is rendered.
type NoticeVariant string

const (
	NoticeDefault     NoticeVariant = "default"
	NoticeDestructive NoticeVariant = "destructive"
)

// Notice is a transient user-visible message.
type Notice struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Variant     NoticeVariant `json:"variant"`
}

func errorNotice(description string) Notice {
	return Notice{Title: "Error", Description: description, Variant: NoticeDestructive}
}

// UpdateKind tags an Update.
type UpdateKind string

const (
	UpdateState    UpdateKind = "state"
	UpdateSession  UpdateKind = "session"
	UpdateHistory  UpdateKind = "history"
	UpdateNotice   UpdateKind = "notice"
	UpdateNavigate UpdateKind = "navigate"
)

// Update is pushed to panel subscribers whenever visible state changes.
type Update struct {
	Kind     UpdateKind   `json:"kind"`
	State    *State       `json:"state,omitempty"`
	Session  *SessionView `json:"session,omitempty"`
	History  *HistoryView `json:"history,omitempty"`
	Notice   *Notice      `json:"notice,omitempty"`
	Navigate string       `json:"navigate,omitempty"`
}
