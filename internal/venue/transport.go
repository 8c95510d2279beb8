package venue

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"execore/internal/errorsx"
	"execore/internal/obs"
)

// Transport is a minimal framed-message connection, abstracted away from
// any one exchange's wire format so the reconnect/backoff logic below
// never needs to know what bytes actually cross it.
type Transport interface {
	Dial(ctx context.Context) error
	Send(ctx context.Context, payload []byte) error
	Recv(ctx context.Context) ([]byte, error)
	Close() error
}

// WSTransport is a Transport backed by github.com/gorilla/websocket,
// suitable for a real venue connector.
type WSTransport struct {
	URL    string
	Header http.Header

	mu   sync.Mutex
	conn *websocket.Conn
}

// Dial opens the websocket connection.
func (t *WSTransport) Dial(ctx context.Context) error {
	dialer := websocket.Dialer{}
	conn, _, err := dialer.DialContext(ctx, t.URL, t.Header)
	if err != nil {
		return errorsx.Wrap(errorsx.ErrTransport, err.Error())
	}
	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	return nil
}

// Send writes one text frame.
func (t *WSTransport) Send(ctx context.Context, payload []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return errorsx.ErrTransport
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return errorsx.Wrap(errorsx.ErrTransport, err.Error())
	}
	return nil
}

// Recv blocks for one inbound frame.
func (t *WSTransport) Recv(ctx context.Context) ([]byte, error) {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return nil, errorsx.ErrTransport
	}
	_, payload, err := conn.ReadMessage()
	if err != nil {
		return nil, errorsx.Wrap(errorsx.ErrTransport, err.Error())
	}
	return payload, nil
}

// Close tears down the underlying connection.
func (t *WSTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

// ReconnectSession drives a Transport through the reconnect contract in
// spec §4.3: exponential backoff with jitter, re-subscription of the
// active subscription set, and a one-shot fatal callback on an
// unrecoverable failure. An adapter implementation composes this rather
// than reimplementing the loop.
type ReconnectSession struct {
	transport Transport
	backoff   Backoff
	log       *obs.Logger

	onFatal FatalCallback

	mu            sync.Mutex
	subscriptions map[string]struct{}
	fatalFired    bool
}

// NewReconnectSession wires a session around transport using the venue
// reconnect backoff policy.
func NewReconnectSession(transport Transport, log *obs.Logger) *ReconnectSession {
	if log == nil {
		log = obs.NewLogger("venue.transport")
	}
	return &ReconnectSession{
		transport:     transport,
		backoff:       DefaultBackoff(),
		log:           log,
		subscriptions: make(map[string]struct{}),
	}
}

// SetFatalCallback registers the one-shot fatal notification.
func (s *ReconnectSession) SetFatalCallback(cb FatalCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFatal = cb
}

// TrackSubscription records a topic so it is re-sent after reconnect.
func (s *ReconnectSession) TrackSubscription(topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[topic] = struct{}{}
}

// DropSubscription removes a topic from the resend set.
func (s *ReconnectSession) DropSubscription(topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscriptions, topic)
}

// Reconnect dials until it succeeds or ctx is cancelled, then replays every
// tracked subscription through resend. isFatal classifies a dial error as
// unrecoverable (e.g. auth rejected); a fatal error fires the callback
// exactly once and stops retrying.
func (s *ReconnectSession) Reconnect(ctx context.Context, isFatal func(error) bool, resend func(topic string) error) error {
	for attempt := 1; ; attempt++ {
		err := s.transport.Dial(ctx)
		if err == nil {
			return s.resendSubscriptions(resend)
		}

		if isFatal != nil && isFatal(err) {
			s.fireFatal(err.Error())
			return err
		}

		delay := s.backoff.Next(attempt)
		s.log.Warnf("reconnect attempt %d failed: %v, retrying in %s", attempt, err, delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeAfter(delay):
		}
	}
}

func (s *ReconnectSession) resendSubscriptions(resend func(topic string) error) error {
	if resend == nil {
		return nil
	}
	s.mu.Lock()
	topics := make([]string, 0, len(s.subscriptions))
	for t := range s.subscriptions {
		topics = append(topics, t)
	}
	s.mu.Unlock()

	for _, topic := range topics {
		if err := resend(topic); err != nil {
			return errorsx.Wrap(errorsx.ErrTransport, "resubscribe "+topic+": "+err.Error())
		}
	}
	return nil
}

func (s *ReconnectSession) fireFatal(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fatalFired {
		return
	}
	s.fatalFired = true
	if s.onFatal != nil {
		s.onFatal(reason)
	}
}
