package dispatch

import (
	"context"
	"errors"
	"sync"

	"github.com/nao1215/pushfan/pkg/pushgateway"
)

// fakeGateway は応答を差し替えられるゲートウェイ。
type fakeGateway struct {
	mu       sync.Mutex
	maxBatch int
	// respond はチャンクの位置と内容から応答を返す。nilの場合は全件okを返す。
	respond func(call int, messages []pushgateway.Message) ([]pushgateway.Ticket, error)
	calls   [][]pushgateway.Message
}

func (g *fakeGateway) Name() string { return "fake" }

func (g *fakeGateway) IsValidToken(token string) bool { return pushgateway.IsExpoPushToken(token) }

func (g *fakeGateway) MaxBatchSize() int {
	if g.maxBatch == 0 {
		return 100
	}
	return g.maxBatch
}

func (g *fakeGateway) SubmitBatch(_ context.Context, messages []pushgateway.Message) ([]pushgateway.Ticket, error) {
	g.mu.Lock()
	call := len(g.calls)
	g.calls = append(g.calls, messages)
	respond := g.respond
	g.mu.Unlock()

	if respond != nil {
		return respond(call, messages)
	}
	return okTickets(messages), nil
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func okTickets(messages []pushgateway.Message) []pushgateway.Ticket {
	tickets := make([]pushgateway.Ticket, len(messages))
	for i, m := range messages {
		tickets[i] = pushgateway.Ticket{ID: "ticket-" + m.To, Status: pushgateway.TicketOK}
	}
	return tickets
}

// memStore はメモリ上の通知・トークン・履歴ストア。
type memStore struct {
	mu            sync.Mutex
	notifications map[int64]*Notification
	tokens        map[int64][]string
	userOrder     []int64
	history       []HistoryEntry
	// claimOverride が設定されている場合、ClaimNotificationの結果を差し替える。
	claimOverride func(n *Notification) bool
	recordErr     error
	// completeFailures 回だけCompleteNotificationを失敗させる。
	completeFailures int
	completeCalls    int
}

func newMemStore() *memStore {
	return &memStore{
		notifications: make(map[int64]*Notification),
		tokens:        make(map[int64][]string),
	}
}

func (s *memStore) addUser(id int64, tokens ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[id] = tokens
	s.userOrder = append(s.userOrder, id)
}

func (s *memStore) addNotification(n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications[n.ID] = &n
}

func (s *memStore) status(id int64) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notifications[id].Status
}

func (s *memStore) historyRows() []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]HistoryEntry(nil), s.history...)
}

func (s *memStore) AllTokens(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []string
	for _, id := range s.userOrder {
		all = append(all, s.tokens[id]...)
	}
	return all, nil
}

func (s *memStore) UserTokens(_ context.Context, userID int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tokens, ok := s.tokens[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return tokens, nil
}

func (s *memStore) GetNotification(_ context.Context, id int64) (*Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return nil, ErrNotificationNotFound
	}
	cp := *n
	return &cp, nil
}

func (s *memStore) ClaimNotification(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return false, nil
	}
	if s.claimOverride != nil {
		return s.claimOverride(n), nil
	}
	if !n.Status.Dispatchable() {
		return false, nil
	}
	n.Status = StatusSending
	return true, nil
}

func (s *memStore) CompleteNotification(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completeCalls++
	if s.completeFailures > 0 {
		s.completeFailures--
		return errors.New("database is locked")
	}
	n := s.notifications[id]
	if n.Status != StatusSending {
		return errors.New("not sending")
	}
	n.Status = StatusSent
	return nil
}

func (s *memStore) ReleaseNotification(_ context.Context, id int64, to Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.notifications[id]
	if n.Status == StatusSending {
		n.Status = to
	}
	return nil
}

func (s *memStore) Record(_ context.Context, entry HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recordErr != nil {
		return s.recordErr
	}
	s.history = append(s.history, entry)
	return nil
}
