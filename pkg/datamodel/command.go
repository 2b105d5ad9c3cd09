package datamodel

import "sync"

// Command is a command of a cluster.
type Command struct {
	cluster *Cluster
	id      CommandID
	flags   CommandFlags

	mu       sync.RWMutex
	callback CommandCallback
	userCb   CommandCallback
}

// CreateCommand adds command id to c. A command with the same id whose
// direction flags overlap is returned unchanged.
func CreateCommand(c *Cluster, id CommandID, flags CommandFlags, cb CommandCallback) (*Command, error) {
	if c == nil {
		return nil, ErrInvalidArg
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cmd := range c.commands {
		if cmd.id == id && cmd.flags&flags != 0 {
			return cmd, nil
		}
	}
	cmd := &Command{cluster: c, id: id, flags: flags, callback: cb}
	c.commands = append(c.commands, cmd)
	return cmd, nil
}

// ID returns the command id.
func (c *Command) ID() CommandID { return c.id }

// Flags returns the command flags.
func (c *Command) Flags() CommandFlags { return c.flags }

// Callback returns the server handler.
func (c *Command) Callback() CommandCallback {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.callback
}

// SetUserCallback sets a handler run after the server handler succeeds.
func (c *Command) SetUserCallback(cb CommandCallback) {
	c.mu.Lock()
	c.userCb = cb
	c.mu.Unlock()
}

// UserCallback returns the handler set by SetUserCallback.
func (c *Command) UserCallback() CommandCallback {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userCb
}
