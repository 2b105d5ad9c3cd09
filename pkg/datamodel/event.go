package datamodel

// Event is an event declared by a cluster.
type Event struct {
	cluster *Cluster
	id      EventID
}

// CreateEvent declares event id on c. Declaring an existing event returns it.
func CreateEvent(c *Cluster, id EventID) (*Event, error) {
	if c == nil {
		return nil, ErrInvalidArg
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.events {
		if e.id == id {
			return e, nil
		}
	}
	e := &Event{cluster: c, id: id}
	c.events = append(c.events, e)
	return e, nil
}

// ID returns the event id.
func (e *Event) ID() EventID { return e.id }
