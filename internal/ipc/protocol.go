package ipc

import "time"

// Request is one newline-delimited command sent to the chat owner.
type Request struct {
	Command string `json:"command"`
	Text    string `json:"text,omitempty"`
	Index   int    `json:"index,omitempty"`
}

// Response carries the owner's state after handling a Request.
type Response struct {
	OK       bool          `json:"ok"`
	State    string        `json:"state,omitempty"`
	Reason   string        `json:"reason,omitempty"`
	Message  string        `json:"message,omitempty"`
	Error    string        `json:"error,omitempty"`
	Messages []MessageView `json:"messages,omitempty"`
}

// MessageView is the wire form of one transcript entry. Index is 1-based.
type MessageView struct {
	Index     int       `json:"index"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	AudioPath string    `json:"audio_path,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
