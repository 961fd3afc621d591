package core

import (
	"context"
	"strings"

	"github.com/toybox-labs/toymem-go/pkg/store"
)

// AppendMessage appends one message to an agent's conversation log and
// returns it with its assigned id and timestamp. Messages are immutable
// once logged.
//
// The role must be one of user, assistant, system or tool.
func (c *Client) AppendMessage(ctx context.Context, agentID string, role store.Role, content string) (*store.Message, error) {
	if agentID == "" || strings.TrimSpace(content) == "" {
		return nil, NewEngineError("AppendMessage", ErrInvalidInput)
	}
	if !store.ValidRole(role) {
		return nil, NewEngineError("AppendMessage", ErrInvalidInput)
	}

	msg := &store.Message{
		ID:      c.node.Generate().Int64(),
		AgentID: agentID,
		Role:    role,
		Content: content,
	}
	if err := c.conversations.AppendMessage(ctx, msg); err != nil {
		return nil, NewEngineError("AppendMessage", err)
	}
	return msg, nil
}

// GetMessage returns one logged message by id, or ErrNotFound.
func (c *Client) GetMessage(ctx context.Context, logID int64) (*store.Message, error) {
	msg, err := c.conversations.GetMessage(ctx, logID)
	if err != nil {
		return nil, NewEngineError("GetMessage", err)
	}
	return msg, nil
}

// History returns an agent's messages in chronological order. A nil opts
// returns the full log.
func (c *Client) History(ctx context.Context, agentID string, opts *store.HistoryOptions) ([]*store.Message, error) {
	if agentID == "" {
		return nil, NewEngineError("History", ErrInvalidInput)
	}
	messages, err := c.conversations.ListByAgent(ctx, agentID, opts)
	if err != nil {
		return nil, NewEngineError("History", err)
	}
	return messages, nil
}

// HistoryByRole returns an agent's messages with the given role, in
// chronological order.
func (c *Client) HistoryByRole(ctx context.Context, agentID string, role store.Role, opts *store.HistoryOptions) ([]*store.Message, error) {
	if !store.ValidRole(role) {
		return nil, NewEngineError("HistoryByRole", ErrInvalidInput)
	}
	messages, err := c.History(ctx, agentID, opts)
	if err != nil {
		return nil, err
	}

	filtered := messages[:0]
	for _, msg := range messages {
		if msg.Role == role {
			filtered = append(filtered, msg)
		}
	}
	return filtered, nil
}

// RecentMessages returns the agent's last n messages in chronological
// order, typically to seed a prompt window.
func (c *Client) RecentMessages(ctx context.Context, agentID string, n int) ([]*store.Message, error) {
	if agentID == "" || n <= 0 {
		return nil, NewEngineError("RecentMessages", ErrInvalidInput)
	}
	messages, err := c.conversations.Recent(ctx, agentID, n)
	if err != nil {
		return nil, NewEngineError("RecentMessages", err)
	}
	return messages, nil
}

// ClearHistory deletes an agent's conversation log and returns the number
// of messages removed. With keepSystem set, role=system messages survive.
// Citations owned by removed messages are deleted with them.
func (c *Client) ClearHistory(ctx context.Context, agentID string, keepSystem bool) (int64, error) {
	if agentID == "" {
		return 0, NewEngineError("ClearHistory", ErrInvalidInput)
	}
	removed, err := c.conversations.Clear(ctx, agentID, keepSystem)
	if err != nil {
		return 0, NewEngineError("ClearHistory", err)
	}
	c.logger.Info("conversation cleared",
		"agent_id", agentID, "keep_system", keepSystem, "removed", removed)
	return removed, nil
}
