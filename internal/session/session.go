// internal/session/session.go
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xkilldash9x/scenarist/internal/browser"
)

// Session is the set of automation resources one scenario owns: a driver, a
// browser, one isolated browser context and the pages opened in it. Sessions
// are never shared between scenarios.
type Session struct {
	ID        string
	CreatedAt time.Time

	driver  browser.Driver
	browser browser.Browser
	context browser.BrowserContext

	mu       sync.Mutex
	pages    []browser.Page
	released bool
}

func newSession() *Session {
	return &Session{ID: uuid.New().String(), CreatedAt: time.Now()}
}

// Page returns the active page, the most recently opened one.
func (s *Session) Page() browser.Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pages) == 0 {
		return nil
	}
	return s.pages[len(s.pages)-1]
}

// Pages returns the open pages in creation order.
func (s *Session) Pages() []browser.Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]browser.Page(nil), s.pages...)
}

// Context returns the session's browser context.
func (s *Session) Context() browser.BrowserContext { return s.context }

// NewPage opens another page in the session's context. It becomes the active page.
func (s *Session) NewPage(ctx context.Context) (browser.Page, error) {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return nil, browser.ErrClosed
	}
	s.mu.Unlock()

	if s.context == nil {
		return nil, fmt.Errorf("session %s has no browser context", s.ID)
	}
	p, err := s.context.NewPage(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.pages = append(s.pages, p)
	s.mu.Unlock()
	return p, nil
}

// Released reports whether the session's resources have been released.
func (s *Session) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}
