package conversation

import (
	"time"

	"github.com/google/uuid"
	"github.com/rbright/parley/internal/fsm"
)

// Role identifies who authored a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one immutable transcript entry.
type Message struct {
	ID        uuid.UUID
	Content   string
	Role      Role
	AudioPath string
	CreatedAt time.Time
}

func newMessage(role Role, content string, audioPath string) Message {
	return Message{
		ID:        uuid.New(),
		Content:   content,
		Role:      role,
		AudioPath: audioPath,
		CreatedAt: time.Now(),
	}
}

// HasAudio reports whether the message can be replayed.
func (m Message) HasAudio() bool {
	return m.AudioPath != ""
}

// Status is the engine state plus the failure reason when failed.
type Status struct {
	State  fsm.State
	Reason string
}

func (s Status) String() string {
	if s.State == fsm.StateFailed && s.Reason != "" {
		return string(s.State) + ": " + s.Reason
	}
	return string(s.State)
}

// Snapshot is a consistent copy of everything a presenter renders.
type Snapshot struct {
	Status   Status
	Messages []Message
	Levels   []float64
	Playing  bool
	Notice   string
}
