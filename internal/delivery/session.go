// Package delivery streams a growing answer to a chat destination as
// one or more rate-limited, markup-safe messages. Text accumulates in a
// session; completed messages are frozen and edited only when their
// content changes, while the open tail message is updated on a throttle
// so edits stay inside the platform's rate limits.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/welldone-ai/assistant/internal/log"
)

var (
	// ErrSessionFailed indicates the session hit an unrecoverable
	// delivery error and accepts no further pushes.
	ErrSessionFailed = errors.New("delivery session failed")
)

const (
	// partPrefixReserve keeps room for the "Part i/N" header added when
	// the answer spans multiple messages.
	partPrefixReserve = 16

	// minCapacity bounds how far repeated too-long shrinks can go.
	minCapacity = 64

	// maxRestarts bounds re-pagination rounds within one sync.
	maxRestarts = 8

	// foldedPart replaces the text of messages left over when a
	// degrade or capacity shrink reduces the rendering to fewer parts.
	// Telegram rejects empty edits, so the message cannot be blanked.
	foldedPart = "…"

	failureNotice = "Sorry, I could not deliver the full response. Please try again."
)

// Destination is a chat endpoint which can post and edit messages.
// markdown selects MarkdownV2 rendering; false sends plain text.
type Destination interface {
	Send(ctx context.Context, text string, markdown bool) (messageID int, err error)
	Edit(ctx context.Context, messageID int, text string, markdown bool) error
}

// Config holds session delivery limits.
type Config struct {
	MaxLength    int           // per-message length ceiling
	EditInterval time.Duration // minimum delay between tail edits
}

func (c *Config) applyDefaults() {
	if c.MaxLength <= 0 {
		c.MaxLength = 4000
	}
	if c.EditInterval <= 0 {
		c.EditInterval = 500 * time.Millisecond
	}
}

// part is one delivered message and the text it currently shows.
type part struct {
	id   int
	sent string
}

// Session accumulates streamed text and mirrors it to the destination.
// Not safe for concurrent use; a session belongs to one response.
type Session struct {
	dest     Destination
	limiter  *rate.Limiter
	maxLen   int
	capacity int

	raw      strings.Builder
	parts    []part
	degraded bool // plain text mode, entered permanently on parse errors
	failed   bool

	logger log.Logger
}

// NewSession creates a session for one response. If logger is nil, the
// default logger is used.
func NewSession(dest Destination, cfg Config, logger log.Logger) *Session {
	if logger == nil {
		logger = log.New(log.Config{})
	}
	cfg.applyDefaults()
	return &Session{
		dest:     dest,
		limiter:  rate.NewLimiter(rate.Every(cfg.EditInterval), 1),
		maxLen:   cfg.MaxLength,
		capacity: cfg.MaxLength - partPrefixReserve,
		logger:   logger,
	}
}

// Push appends a chunk and updates the destination. Frozen parts whose
// content changed are edited immediately; the tail part is updated only
// when the edit throttle allows, so bursts of small chunks coalesce.
func (s *Session) Push(ctx context.Context, chunk string) error {
	if s.failed {
		return ErrSessionFailed
	}
	s.raw.WriteString(chunk)
	return s.sync(ctx, false)
}

// Finalize flushes the remaining text, waiting out the throttle so the
// destination shows the complete answer, and numbers the parts when the
// answer spans more than one message. A degrade or capacity shrink
// during numbering re-syncs the whole session so no message is left
// showing a stale rendering.
func (s *Session) Finalize(ctx context.Context) error {
	if s.failed {
		return ErrSessionFailed
	}
	if s.raw.Len() == 0 {
		return nil
	}
	for attempt := 0; attempt < maxRestarts; attempt++ {
		if err := s.sync(ctx, true); err != nil {
			return err
		}
		restart, err := s.finishParts(ctx)
		if err != nil {
			s.fail(ctx)
			return err
		}
		if !restart {
			return nil
		}
	}
	s.fail(ctx)
	return fmt.Errorf("%w: finalization did not converge", ErrSessionFailed)
}

// Parts reports how many messages the session has posted.
func (s *Session) Parts() int {
	return len(s.parts)
}

// Text returns the accumulated raw text.
func (s *Session) Text() string {
	return s.raw.String()
}

// render produces the outgoing form of the accumulated text.
func (s *Session) render() string {
	if s.degraded {
		return s.raw.String()
	}
	return Escape(s.raw.String())
}

// sync brings the destination up to date, restarting pagination when a
// recoverable error changes the rendering mode or the capacity.
func (s *Session) sync(ctx context.Context, final bool) error {
	for i := 0; i < maxRestarts; i++ {
		restart, err := s.syncOnce(ctx, final)
		if err != nil {
			s.fail(ctx)
			return err
		}
		if !restart {
			return nil
		}
	}
	s.fail(ctx)
	return fmt.Errorf("%w: pagination did not converge", ErrSessionFailed)
}

func (s *Session) syncOnce(ctx context.Context, final bool) (restart bool, err error) {
	rendered := s.render()
	if rendered == "" {
		return false, nil
	}

	segments := paginate(rendered, s.capacity)
	for i, segment := range segments {
		if i < len(s.parts) && s.parts[i].sent == segment {
			continue
		}

		tail := i == len(segments)-1
		if tail && !final && !s.limiter.Allow() {
			// Wait for the next push or the finalize flush.
			continue
		}
		if tail && final {
			if err := s.limiter.Wait(ctx); err != nil {
				return false, err
			}
		}

		restart, err := s.deliver(ctx, i, segment)
		if restart || err != nil {
			return restart, err
		}
	}
	return s.foldSurplus(ctx, len(segments))
}

// foldSurplus collapses posted messages beyond the current segment
// count, so a rendering that shrank leaves no stale text behind.
func (s *Session) foldSurplus(ctx context.Context, segments int) (restart bool, err error) {
	for i := segments; i < len(s.parts); i++ {
		if s.parts[i].sent == foldedPart {
			continue
		}
		restart, err := s.deliver(ctx, i, foldedPart)
		if restart || err != nil {
			return restart, err
		}
	}
	return false, nil
}

// deliver sends or edits part i. Recoverable failures adjust session
// state and request a restart; anything else is returned as-is.
func (s *Session) deliver(ctx context.Context, i int, text string) (restart bool, err error) {
	markdown := !s.degraded

	if i < len(s.parts) && s.parts[i].id != 0 {
		err = s.dest.Edit(ctx, s.parts[i].id, text, markdown)
		if err == nil || IsNotModified(err) {
			s.parts[i].sent = text
			return false, nil
		}
	} else {
		var id int
		id, err = s.dest.Send(ctx, text, markdown)
		if err == nil {
			for len(s.parts) <= i {
				s.parts = append(s.parts, part{})
			}
			s.parts[i] = part{id: id, sent: text}
			return false, nil
		}
	}

	switch {
	case IsParseError(err) && !s.degraded:
		// One-way: once markup has failed to parse there is no route
		// back to formatted output for this response.
		s.degraded = true
		s.logger.Warn("markup rejected, degrading to plain text", "part", i+1, "error", err)
		return true, nil
	case IsTooLong(err) && s.capacity > minCapacity:
		s.capacity = s.capacity * 3 / 4
		s.logger.Warn("message too long, shrinking capacity",
			"part", i+1, "capacity", s.capacity)
		return true, nil
	default:
		return false, fmt.Errorf("delivering part %d: %w", i+1, err)
	}
}

// finishParts rewrites every message with a "Part i/N" header when the
// final rendering spans more than one. The total comes from the current
// pagination, not from how many messages were posted along the way.
func (s *Session) finishParts(ctx context.Context) (restart bool, err error) {
	segments := paginate(s.render(), s.capacity)
	total := len(segments)
	if total < 2 {
		return false, nil
	}

	for i, segment := range segments {
		numbered := fmt.Sprintf("Part %d/%d\n\n%s", i+1, total, segment)
		if i < len(s.parts) && numbered == s.parts[i].sent {
			continue
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return false, err
		}
		restart, err := s.deliver(ctx, i, numbered)
		if restart || err != nil {
			return restart, err
		}
	}
	return false, nil
}

// fail marks the session dead and posts a plain-text notice so the user
// is not left staring at a truncated answer.
func (s *Session) fail(ctx context.Context) {
	if s.failed {
		return
	}
	s.failed = true
	if _, err := s.dest.Send(ctx, failureNotice, false); err != nil {
		s.logger.Warn("failed to post delivery failure notice", "error", err)
	}
}
