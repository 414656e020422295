package relay

import (
	"strings"

	"github.com/Jlypx/BetterForward-enhance/internal/model"
)

// Command names recognised in staff topics and private chats.
const (
	CommandBan    = "ban"
	CommandUnban  = "unban"
	CommandStatus = "status"
	CommandStart  = "start"
)

var groupCommands = map[string]bool{
	CommandBan:    true,
	CommandUnban:  true,
	CommandStatus: true,
}

// ParseCommand extracts a bot command from message text. A "@botname"
// suffix on the command is dropped. It returns nil for plain text.
func ParseCommand(text string) *model.Command {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "/") {
		return nil
	}

	fields := strings.Fields(trimmed[1:])
	if len(fields) == 0 {
		return nil
	}

	name := fields[0]
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	name = strings.ToLower(name)
	if name == "" {
		return nil
	}

	return &model.Command{Name: name, Args: fields[1:]}
}

// isGroupCommand reports whether cmd is one staff can issue inside a topic.
func isGroupCommand(cmd *model.Command) bool {
	return cmd != nil && groupCommands[cmd.Name]
}

func isStartCommand(cmd *model.Command) bool {
	return cmd != nil && cmd.Name == CommandStart
}
