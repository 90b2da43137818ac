package chatlog

import "time"

// Role identifies who authored a log entry.
type Role uint8

const (
	RoleSelf Role = iota
	RoleRemote
	RoleSystem
)

func (r Role) String() string {
	switch r {
	case RoleSelf:
		return "self"
	case RoleRemote:
		return "remote"
	case RoleSystem:
		return "system"
	default:
		return "unknown"
	}
}

// Kind classifies what a log entry carries.
type Kind uint8

const (
	KindText Kind = iota
	KindFile
	KindNotice
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindFile:
		return "file"
	case KindNotice:
		return "notice"
	default:
		return "unknown"
	}
}

// Message is one immutable log entry. File entries carry the full
// payload and are inserted once, after the transfer finished; they are
// never updated in place. RemoteSeq is the sender's envelope sequence
// and is only set on entries of RoleRemote.
type Message struct {
	ID        string
	Role      Role
	Kind      Kind
	Content   string
	CreatedAt time.Time
	Seq       uint64
	RemoteSeq uint64
	FileName  string
	FileSize  int64
	Payload   []byte
}
