package api

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// LoginLocation is where the console sends the user when the session ends.
const LoginLocation = "/"

// Navigator moves the user between console locations.
type Navigator interface {
	Location() string
	Navigate(path string)
}

// MemoryNavigator tracks the location of a console without a browser, such as
// the command line tool.
type MemoryNavigator struct {
	mu       sync.Mutex
	location string
	history  []string
}

func NewMemoryNavigator(location string) *MemoryNavigator {
	return &MemoryNavigator{location: location}
}

func (n *MemoryNavigator) Location() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.location
}

func (n *MemoryNavigator) Navigate(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.history = append(n.history, path)
	n.location = path
}

// History returns every location navigated to, oldest first.
func (n *MemoryNavigator) History() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.history...)
}

// redirectToLogin clears stored credentials and goes to the login location
// unless already there.
func (c *Client) redirectToLogin(reason string) {
	c.creds.Clear()
	log.Warn().Str("reason", reason).Msg("session ended")

	if c.nav == nil || c.nav.Location() == LoginLocation {
		return
	}
	c.nav.Navigate(LoginLocation)
}
