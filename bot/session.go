// Copyright 2026 The Davinto Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/davinto-labs/davinto/lib/clock"
	"github.com/davinto-labs/davinto/lib/secret"
	"github.com/davinto-labs/davinto/messaging"
)

// State is the session lifecycle phase.
type State int32

const (
	StateUnauthenticated State = iota
	StatePairingInProgress
	StateAuthenticating
	StateConnected
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StatePairingInProgress:
		return "pairing"
	case StateAuthenticating:
		return "authenticating"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ErrLoggedOut is returned by Run when the homeserver revokes the
// access token. Terminal: the operator must re-pair.
var ErrLoggedOut = errors.New("bot: session logged out by server")

// Prompter supplies pairing secrets from the operator at startup.
// The terminal implementation lives in cmd/davintod; tests use fakes.
type Prompter interface {
	// Password prompts for the account password.
	Password(ctx context.Context) (*secret.Buffer, error)

	// PairingToken prompts for the registration pairing code.
	PairingToken(ctx context.Context) (*secret.Buffer, error)
}

// OnEventFunc receives each timeline event from the sync stream.
type OnEventFunc func(ctx context.Context, event messaging.Event, roomID string, isGroup bool)

// Sync tuning. The inline filter caps timeline chunks so a long
// offline gap doesn't replay an unbounded backlog in one response.
const (
	syncTimeoutMS = 30000
	syncFilter    = `{"room":{"timeline":{"limit":50},"state":{"lazy_load_members":true}}}`
)

// A room is a group chat when it holds more than the bot and one
// peer.
const groupMemberThreshold = 2

// SessionConfig wires a SessionManager.
type SessionConfig struct {
	Client      *messaging.Client
	Credentials *CredentialStore
	Prompter    Prompter

	// Username is the account localpart used for pairing or login
	// when no stored credential exists.
	Username string

	// PairWithToken selects token-authenticated registration over
	// password login for first-boot pairing.
	PairWithToken bool

	Clock   clock.Clock
	Logger  *slog.Logger
	Policy  RetryPolicy
	OnEvent OnEventFunc
}

// SessionManager owns the connection to the homeserver: it acquires
// credentials (stored or freshly paired), drives the sync stream, and
// reconnects with a fresh session on recoverable failures. Credential
// material never leaves the manager; handlers only see events.
type SessionManager struct {
	client  *messaging.Client
	creds   *CredentialStore
	prompt  Prompter
	user    string
	pairing bool
	clock   clock.Clock
	logger  *slog.Logger
	policy  RetryPolicy
	onEvent OnEventFunc

	stateMu sync.Mutex
	state   State

	activeMu sync.Mutex
	active   messaging.Session
	userID   string

	countMu      sync.Mutex
	memberCounts map[string]int

	// connect builds a session from credentials; the default restores
	// via the transport client. Tests substitute fakes.
	connect func(ctx context.Context, creds *Credentials) (messaging.Session, error)
}

// NewSessionManager wires a manager. Policy zero-value defaults to
// DefaultRetryPolicy.
func NewSessionManager(config SessionConfig) *SessionManager {
	policy := config.Policy
	if policy.Base == 0 {
		policy = DefaultRetryPolicy()
	}
	m := &SessionManager{
		client:       config.Client,
		creds:        config.Credentials,
		prompt:       config.Prompter,
		user:         config.Username,
		pairing:      config.PairWithToken,
		clock:        config.Clock,
		logger:       config.Logger,
		policy:       policy,
		onEvent:      config.OnEvent,
		memberCounts: make(map[string]int),
	}
	m.connect = m.restoreSession
	return m
}

// UserID returns the authenticated user ID, or "" before Run has
// acquired credentials.
func (m *SessionManager) UserID() string {
	m.activeMu.Lock()
	defer m.activeMu.Unlock()
	return m.userID
}

// State returns the current lifecycle phase.
func (m *SessionManager) State() State {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.state
}

func (m *SessionManager) setState(next State) {
	m.stateMu.Lock()
	previous := m.state
	m.state = next
	m.stateMu.Unlock()
	if previous != next {
		m.logger.Info("session state changed", "from", previous.String(), "to", next.String())
	}
}

// Run acquires credentials and drives the sync/reconnect loop until
// the context is cancelled (returns nil) or the server revokes the
// token (returns ErrLoggedOut). Other errors are fatal setup
// failures: unusable credential store, failed pairing, failed
// credential persistence.
func (m *SessionManager) Run(ctx context.Context) error {
	credentials, err := m.ensureCredentials(ctx)
	if err != nil {
		return err
	}
	defer credentials.Close()

	m.activeMu.Lock()
	m.userID = credentials.UserID
	m.activeMu.Unlock()

	since := ""
	failures := 0
	for {
		// The first attempt after a failure is immediate; the policy
		// backs off from the second on.
		if err := m.policy.Wait(ctx, m.clock, failures-1); err != nil {
			m.setState(StateClosing)
			return nil
		}

		m.setState(StateAuthenticating)
		session, err := m.connect(ctx, credentials)
		if err != nil {
			if messaging.IsLoggedOut(err) {
				m.setState(StateClosing)
				return ErrLoggedOut
			}
			if ctx.Err() != nil {
				m.setState(StateClosing)
				return nil
			}
			failures++
			m.logger.Warn("connecting failed", "failures", failures, "error", err)
			continue
		}

		m.setState(StateConnected)
		failures = 0

		m.activeMu.Lock()
		m.active = session
		m.activeMu.Unlock()

		err = m.syncLoop(ctx, session, &since)

		m.activeMu.Lock()
		m.active = nil
		m.activeMu.Unlock()
		session.Close()
		session.CloseIdleConnections()

		switch {
		case ctx.Err() != nil:
			m.setState(StateClosing)
			return nil
		case messaging.IsLoggedOut(err):
			m.setState(StateClosing)
			return ErrLoggedOut
		default:
			// Recoverable disconnect: rebuild an entirely fresh
			// session from the stored credential. The first retry is
			// immediate, then the policy backs off.
			failures++
			m.logger.Warn("sync stream failed, reconnecting", "failures", failures, "error", err)
		}
	}
}

// ensureCredentials loads stored credentials or pairs for new ones.
// Freshly issued credentials are persisted before the session
// proceeds; a persist failure is fatal.
func (m *SessionManager) ensureCredentials(ctx context.Context) (*Credentials, error) {
	m.setState(StateUnauthenticated)

	stored, err := m.creds.Load()
	if err != nil {
		return nil, err
	}
	if stored != nil {
		m.logger.Info("using stored credentials", "user_id", stored.UserID)
		return stored, nil
	}

	m.setState(StatePairingInProgress)
	session, err := m.pair(ctx)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	// AccessToken hands out a heap string at this one persistence
	// boundary; NewFromBytes zeroes the intermediate copy.
	tokenBuffer, err := secret.NewFromBytes([]byte(session.AccessToken()))
	if err != nil {
		return nil, fmt.Errorf("bot: protecting access token: %w", err)
	}
	credentials := &Credentials{
		UserID:      session.UserID(),
		DeviceID:    session.DeviceID(),
		AccessToken: tokenBuffer,
	}

	if err := m.creds.Save(credentials); err != nil {
		credentials.Close()
		return nil, fmt.Errorf("bot: persisting credentials: %w", err)
	}
	m.logger.Info("paired and stored credentials", "user_id", credentials.UserID)
	return credentials, nil
}

// pair acquires a brand-new session from the operator: registration
// with a pairing token, or password login, per configuration.
func (m *SessionManager) pair(ctx context.Context) (*messaging.DirectSession, error) {
	password, err := m.prompt.Password(ctx)
	if err != nil {
		return nil, fmt.Errorf("bot: reading password: %w", err)
	}
	defer password.Close()

	if !m.pairing {
		session, err := m.client.Login(ctx, m.user, password)
		if err != nil {
			return nil, fmt.Errorf("bot: login failed: %w", err)
		}
		return session, nil
	}

	pairingToken, err := m.prompt.PairingToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("bot: reading pairing token: %w", err)
	}
	defer pairingToken.Close()

	session, err := m.client.Register(ctx, messaging.RegisterRequest{
		Username:     m.user,
		Password:     password,
		PairingToken: pairingToken,
	})
	if err != nil {
		return nil, fmt.Errorf("bot: pairing registration failed: %w", err)
	}
	return session, nil
}

// restoreSession builds a fresh authenticated session from stored
// credentials and validates it with a whoami round trip.
func (m *SessionManager) restoreSession(ctx context.Context, credentials *Credentials) (messaging.Session, error) {
	session, err := m.client.SessionFromToken(credentials.UserID, credentials.DeviceID, credentials.AccessToken)
	if err != nil {
		return nil, err
	}
	if _, err := session.WhoAmI(ctx); err != nil {
		session.Close()
		return nil, err
	}
	return session, nil
}

// syncLoop drives /sync until the context ends or the stream errors.
// The since token survives reconnects so replayed events are not
// re-dispatched.
func (m *SessionManager) syncLoop(ctx context.Context, session messaging.Session, since *string) error {
	// The first sync after startup establishes the next_batch token
	// without dispatching the backlog: a bot that was offline should
	// not answer week-old commands on reboot.
	if *since == "" {
		response, err := session.Sync(ctx, messaging.SyncOptions{
			Timeout:    0,
			SetTimeout: true,
			Filter:     syncFilter,
		})
		if err != nil {
			return fmt.Errorf("initial sync: %w", err)
		}
		*since = response.NextBatch
		m.acceptInvites(ctx, session, response)
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		response, err := session.Sync(ctx, messaging.SyncOptions{
			Since:      *since,
			Timeout:    syncTimeoutMS,
			SetTimeout: true,
			Filter:     syncFilter,
		})
		if err != nil {
			return err
		}
		*since = response.NextBatch
		m.acceptInvites(ctx, session, response)
		m.processTimeline(ctx, session, response)
	}
}

// acceptInvites joins every room the bot was invited to. Join
// failures are logged; the invite stays pending for the next sync.
func (m *SessionManager) acceptInvites(ctx context.Context, session messaging.Session, response *messaging.SyncResponse) {
	for roomID := range response.Rooms.Invite {
		if _, err := session.JoinRoom(ctx, roomID); err != nil {
			m.logger.Warn("joining invited room failed", "room_id", roomID, "error", err)
			continue
		}
		m.logger.Info("joined room from invite", "room_id", roomID)
	}
}

// processTimeline forwards timeline events from joined rooms to the
// dispatcher, tagged with the room's group flag.
func (m *SessionManager) processTimeline(ctx context.Context, session messaging.Session, response *messaging.SyncResponse) {
	for roomID, room := range response.Rooms.Join {
		if count := room.Summary.JoinedMemberCount; count > 0 {
			m.countMu.Lock()
			m.memberCounts[roomID] = count
			m.countMu.Unlock()
		}
		if len(room.Timeline.Events) == 0 {
			continue
		}
		isGroup := m.isGroup(ctx, session, roomID)
		for _, event := range room.Timeline.Events {
			m.onEvent(ctx, event, roomID, isGroup)
		}
	}
}

// isGroup reports whether a room has more members than a one-on-one
// chat. Counts come from sync summaries when the server sends them,
// falling back to one /members fetch per room, cached thereafter.
func (m *SessionManager) isGroup(ctx context.Context, session messaging.Session, roomID string) bool {
	m.countMu.Lock()
	count, known := m.memberCounts[roomID]
	m.countMu.Unlock()
	if known {
		return count > groupMemberThreshold
	}

	members, err := session.GetRoomMembers(ctx, roomID)
	if err != nil {
		m.logger.Warn("fetching room members failed", "room_id", roomID, "error", err)
		return false
	}
	m.countMu.Lock()
	m.memberCounts[roomID] = len(members)
	m.countMu.Unlock()
	return len(members) > groupMemberThreshold
}
