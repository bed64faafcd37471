package frame

import (
	"fmt"
	"strings"
)

// turn is one user→assistant exchange kept for multi-turn context.
type turn struct {
	user      string
	assistant string
}

func (c *Coordinator) remember(user, assistant string) {
	if c.cfg.HistoryTurns <= 0 {
		return
	}
	c.history = append(c.history, turn{user: user, assistant: assistant})
	if len(c.history) > c.cfg.HistoryTurns {
		c.history = c.history[len(c.history)-c.cfg.HistoryTurns:]
	}
}

// formatInput prepends the retained history to the current message.
func (c *Coordinator) formatInput(current string) string {
	if len(c.history) == 0 {
		return current
	}
	var b strings.Builder
	for _, t := range c.history {
		fmt.Fprintf(&b, "User: %s\nAssistant: %s\n", t.user, t.assistant)
	}
	fmt.Fprintf(&b, "User: %s", current)
	return b.String()
}
