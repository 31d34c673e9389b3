package session

import (
	"fmt"
	"strings"

	"llmsrc/pkg/contract"
)

// Command 为外部控制请求（控制面）。
type Command string

const (
	CmdPause Command = "pause"
	CmdStop  Command = "stop"
	CmdReset Command = "reset"
)

// ParseCommand 校验命令名。
func ParseCommand(s string) (Command, error) {
	switch c := Command(strings.TrimSpace(strings.ToLower(s))); c {
	case CmdPause, CmdStop, CmdReset:
		return c, nil
	default:
		return "", fmt.Errorf("%w: unknown control command %q", contract.ErrInvalidInput, s)
	}
}

// Apply 把控制命令作用于会话。
func (s *Session) Apply(c Command) error {
	switch c {
	case CmdPause:
		s.Pause()
	case CmdStop:
		s.Stop()
	case CmdReset:
		s.Reset()
	default:
		return fmt.Errorf("%w: unknown control command %q", contract.ErrInvalidInput, c)
	}
	s.Logf("control: %s", c)
	return nil
}
