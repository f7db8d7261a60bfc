package client

import (
	"time"

	"github.com/rs/zerolog/log"
)

type NoticeLevel int

const (
	NoticeInfo NoticeLevel = iota
	NoticeWarning
)

func (l NoticeLevel) String() string {
	if l == NoticeWarning {
		return "warning"
	}
	return "info"
}

// Notice is a user-visible message from the runner. Err is set for transport
// failures the session recovered from.
type Notice struct {
	At      time.Time
	Level   NoticeLevel
	Message string
	Err     error
}

func (n Notice) String() string {
	if n.Err != nil {
		return n.Message + ": " + n.Err.Error()
	}
	return n.Message
}

// notify never blocks; a reader that falls behind loses notices
func (r *Runner) notify(level NoticeLevel, msg string, err error) {
	n := Notice{At: r.clock.Now(), Level: level, Message: msg, Err: err}
	select {
	case r.notices <- n:
	default:
		log.Warn().Str("notice", n.String()).Msg("notice dropped, reader is behind")
	}
}
