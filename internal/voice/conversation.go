package voice

import "fmt"

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in the conversation. A pending turn is a placeholder
// that will be resolved in place once the exchange finishes.
type Turn struct {
	Role    Role
	Content string
	Pending bool
}

// Conversation is an append-only log of turns. The only permitted mutation
// of an existing turn is resolving a pending one.
type Conversation struct {
	turns []Turn
}

// Append adds a turn and returns its index.
func (c *Conversation) Append(turn Turn) int {
	c.turns = append(c.turns, turn)
	return len(c.turns) - 1
}

// Resolve replaces the content of the pending turn at index and marks it
// resolved.
func (c *Conversation) Resolve(index int, content string) error {
	if index < 0 || index >= len(c.turns) {
		return fmt.Errorf("turn %d out of range", index)
	}
	if !c.turns[index].Pending {
		return fmt.Errorf("turn %d is not pending", index)
	}
	c.turns[index].Content = content
	c.turns[index].Pending = false
	return nil
}

// Turns returns a copy of the log.
func (c *Conversation) Turns() []Turn {
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Len returns the number of turns.
func (c *Conversation) Len() int {
	return len(c.turns)
}
