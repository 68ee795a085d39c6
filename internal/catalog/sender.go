package catalog

// Sender remembers which catalog revision each session last received.
type Sender struct {
	sent map[string]string
}

// NewSender creates an empty sender cache.
func NewSender() *Sender {
	return &Sender{sent: make(map[string]string)}
}

// ShouldSend reports whether the session still needs this catalog and records it as sent.
func (s *Sender) ShouldSend(session string, c *Catalog) bool {
	if c == nil {
		return false
	}
	if s.sent[session] == c.Revision {
		return false
	}
	s.sent[session] = c.Revision
	return true
}

// Forget drops a session so its next request gets the full catalog.
func (s *Sender) Forget(session string) {
	delete(s.sent, session)
}
