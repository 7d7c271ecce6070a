package reactmon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/guildmod/warden/reactmon/countstore"
	"github.com/guildmod/warden/reactmon/flagstore"

	"github.com/jonboulle/clockwork"
)

// FakePlatform is an in-memory Platform which records every action.
type FakePlatform struct {
	mu       sync.Mutex
	Messages map[string]*Message
	// returned by every call when set
	Err          error
	Cleared      []string
	RolesAdded   []string
	RolesRemoved []string
}

func NewFakePlatform() *FakePlatform {
	return &FakePlatform{Messages: make(map[string]*Message)}
}

func (p *FakePlatform) AddMessage(msg Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Messages[msg.ChannelID+"/"+msg.ID] = &msg
}

func (p *FakePlatform) FetchMessage(ctx context.Context, channelID, messageID string) (*Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return nil, p.Err
	}
	msg, ok := p.Messages[channelID+"/"+messageID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMessageNotFound, messageID)
	}
	out := *msg
	return &out, nil
}

func (p *FakePlatform) ClearReaction(ctx context.Context, msg *Message, emoji Emoji) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.Cleared = append(p.Cleared, msg.ID+" "+emoji.Key())
	return nil
}

func (p *FakePlatform) AddRoleToMember(ctx context.Context, guildID, userID, roleID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.RolesAdded = append(p.RolesAdded, guildID+"/"+userID+" "+roleID)
	return nil
}

func (p *FakePlatform) RemoveRoleFromMember(ctx context.Context, guildID, userID, roleID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.RolesRemoved = append(p.RolesRemoved, guildID+"/"+userID+" "+roleID)
	return nil
}

// FakeAuthority answers permission questions from static sets.
type FakeAuthority struct {
	mu        sync.Mutex
	BotID     string
	Mods      map[string]bool
	Admins    map[string]bool
	BotAdmins map[string]bool
	Ignored   map[string]bool
}

func NewFakeAuthority(botID string) *FakeAuthority {
	return &FakeAuthority{
		BotID:     botID,
		Mods:      map[string]bool{},
		Admins:    map[string]bool{},
		BotAdmins: map[string]bool{},
		Ignored:   map[string]bool{},
	}
}

func (a *FakeAuthority) SetModerator(userID string, mod bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Mods[userID] = mod
}

func (a *FakeAuthority) BotUserID() string { return a.BotID }

func (a *FakeAuthority) IsModerator(guildID string, m *Member) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return m != nil && a.Mods[m.UserID]
}

func (a *FakeAuthority) IsAdminRole(guildID string, m *Member) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return m != nil && a.Admins[m.UserID]
}

func (a *FakeAuthority) IsBotAdmin(userID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.BotAdmins[userID]
}

func (a *FakeAuthority) IgnoredChannels(guildID string) map[string]bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Ignored
}

// RecordingLogSink keeps every mod log message.
type RecordingLogSink struct {
	mu       sync.Mutex
	Messages []string
}

func (s *RecordingLogSink) SendLogMessage(ctx context.Context, guildID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages = append(s.Messages, guildID+": "+text)
	return nil
}

func (s *RecordingLogSink) Sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.Messages...)
}

type RecordingReporter struct {
	mu     sync.Mutex
	Errors []error
}

func (r *RecordingReporter) ReportUnexpectedError(ctx context.Context, where string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Errors = append(r.Errors, fmt.Errorf("%s: %w", where, err))
}

func (r *RecordingReporter) Reported() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.Errors...)
}

// MonitorFixture bundles a Monitor with fakes for every collaborator.
type MonitorFixture struct {
	Monitor   *Monitor
	Clock     *clockwork.FakeClock
	Platform  *FakePlatform
	Authority *FakeAuthority
	Log       *RecordingLogSink
	Reporter  *RecordingReporter
	Counters  *countstore.MemCountStore
	Flags     *flagstore.MemFlagStore
}

// MonitorTestFixture returns a fixture whose clock starts at a fixed instant. The bot's user ID is
// "bot".
func MonitorTestFixture() MonitorFixture {
	clk := clockwork.NewFakeClockAt(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	f := MonitorFixture{
		Clock:     clk,
		Platform:  NewFakePlatform(),
		Authority: NewFakeAuthority("bot"),
		Log:       &RecordingLogSink{},
		Reporter:  &RecordingReporter{},
		Counters:  countstore.NewMemCountStore(clk),
		Flags:     flagstore.NewMemFlagStore(),
	}
	mon, err := NewMonitor(MonitorConfig{
		Logger:    slog.Default(),
		Clock:     clk,
		Platform:  f.Platform,
		Authority: f.Authority,
		Log:       f.Log,
		Errors:    f.Reporter,
		Counters:  f.Counters,
		Flags:     f.Flags,
	})
	if err != nil {
		panic(err)
	}
	f.Monitor = mon
	return f
}
