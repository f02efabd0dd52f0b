package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ArchSirius/log3900-server/internal/app/chat"
	"github.com/ArchSirius/log3900-server/internal/app/db"
	"github.com/ArchSirius/log3900-server/internal/app/user"
	"github.com/ArchSirius/log3900-server/internal/app/zone"
)

// fakeZoneStore is an in-memory ZoneStore returning deep copies, so edits
// only persist through explicit SaveNode calls like the real store.
type fakeZoneStore struct {
	mu    sync.Mutex
	zones map[string]*zone.Zone

	saveErr  error
	touchErr error

	savedNodes   int
	deletedNodes []string
	statsGames   int
	statsSeconds float64
}

func newFakeZoneStore(zones ...*zone.Zone) *fakeZoneStore {
	s := &fakeZoneStore{zones: make(map[string]*zone.Zone)}
	for _, z := range zones {
		s.zones[z.ID] = z
	}
	return s
}

func (s *fakeZoneStore) GetZone(_ context.Context, id string) (*zone.Zone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	z, ok := s.zones[id]
	if !ok {
		return nil, db.ErrNotFound
	}

	cp := *z
	cp.Nodes = make([]*zone.Node, len(z.Nodes))
	for i, n := range z.Nodes {
		nc := *n
		cp.Nodes[i] = &nc
	}
	return &cp, nil
}

func (s *fakeZoneStore) CreateNode(_ context.Context, zoneID string, n *zone.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	z, ok := s.zones[zoneID]
	if !ok {
		return db.ErrNotFound
	}
	nc := *n
	z.Nodes = append(z.Nodes, &nc)
	return nil
}

func (s *fakeZoneStore) SaveNode(_ context.Context, zoneID string, n *zone.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.saveErr != nil {
		return s.saveErr
	}
	z, ok := s.zones[zoneID]
	if !ok {
		return db.ErrNotFound
	}
	for i, existing := range z.Nodes {
		if existing.ID == n.ID {
			nc := *n
			z.Nodes[i] = &nc
			s.savedNodes++
			return nil
		}
	}
	return db.ErrNotFound
}

func (s *fakeZoneStore) DeleteNodes(_ context.Context, zoneID string, nodeIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	z, ok := s.zones[zoneID]
	if !ok {
		return db.ErrNotFound
	}
	drop := make(map[string]struct{}, len(nodeIDs))
	for _, id := range nodeIDs {
		drop[id] = struct{}{}
	}
	kept := z.Nodes[:0]
	for _, n := range z.Nodes {
		if _, gone := drop[n.ID]; gone {
			s.deletedNodes = append(s.deletedNodes, n.ID)
			continue
		}
		kept = append(kept, n)
	}
	z.Nodes = kept
	return nil
}

func (s *fakeZoneStore) TouchZone(_ context.Context, zoneID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.touchErr != nil {
		return s.touchErr
	}
	if z, ok := s.zones[zoneID]; ok {
		z.UpdatedBy = userID
	}
	return nil
}

func (s *fakeZoneStore) AddZoneStats(_ context.Context, zoneID string, games int, seconds float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	z, ok := s.zones[zoneID]
	if !ok {
		return db.ErrNotFound
	}
	z.Stats.PlayedGames += games
	z.Stats.PlayedTime += seconds
	s.statsGames += games
	s.statsSeconds += seconds
	return nil
}

type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]*user.User
}

func newFakeUserStore(users ...*user.User) *fakeUserStore {
	s := &fakeUserStore{users: make(map[string]*user.User)}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *fakeUserStore) GetUser(_ context.Context, id string) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *fakeUserStore) AddUserStats(_ context.Context, userID string, games int, seconds float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return db.ErrNotFound
	}
	u.Stats.PlayedGames += games
	u.Stats.PlayedTime += seconds
	return nil
}

// fakeMessageStore keeps channels, messages and the pending queue in memory.
type fakeMessageStore struct {
	mu        sync.Mutex
	channels  map[string]string   // name -> channel id
	relations map[string]string   // ordered "a|b" -> channel id
	messages  map[string][]chat.Message
	byID      map[string]chat.Message
	pending   map[string][]string // recipient -> message ids
	usernames map[string]string
}

func newFakeMessageStore(usernames map[string]string) *fakeMessageStore {
	return &fakeMessageStore{
		channels:  make(map[string]string),
		relations: make(map[string]string),
		messages:  make(map[string][]chat.Message),
		byID:      make(map[string]chat.Message),
		pending:   make(map[string][]string),
		usernames: usernames,
	}
}

func (s *fakeMessageStore) EnsureChannel(_ context.Context, name string, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.channels[name]; ok {
		return id, nil
	}
	id := uuid.NewString()
	s.channels[name] = id
	return id, nil
}

func (s *fakeMessageStore) EnsureRelationChannel(_ context.Context, userA, userB string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := relationKey(userA, userB)
	if id, ok := s.relations[key]; ok {
		return id, nil
	}
	id := uuid.NewString()
	s.relations[key] = id
	return id, nil
}

func relationKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return fmt.Sprintf("%s|%s", a, b)
}

func (s *fakeMessageStore) ArchiveMessage(_ context.Context, channelID, authorID, text string) (*chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := chat.Message{
		ID:        uuid.NewString(),
		ChannelID: channelID,
		Text:      text,
		CreatedBy: chat.Author{ID: authorID, Username: s.usernames[authorID]},
		CreatedAt: time.Now(),
	}
	s.messages[channelID] = append(s.messages[channelID], msg)
	s.byID[msg.ID] = msg
	return &msg, nil
}

func (s *fakeMessageStore) PendMessage(_ context.Context, recipientID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending[recipientID] = append(s.pending[recipientID], messageID)
	return nil
}

func (s *fakeMessageStore) DrainPending(_ context.Context, recipientID string) ([]chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.pending[recipientID]
	delete(s.pending, recipientID)

	messages := []chat.Message{}
	for _, id := range ids {
		if msg, ok := s.byID[id]; ok {
			messages = append(messages, msg)
		}
	}
	return messages, nil
}

func (s *fakeMessageStore) ChannelHistory(_ context.Context, name string, limit int) ([]chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.channels[name]
	if !ok {
		return []chat.Message{}, nil
	}
	msgs := s.messages[id]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]chat.Message{}, msgs...), nil
}

func (s *fakeMessageStore) RelationHistory(_ context.Context, userA, userB string, limit int) ([]chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.relations[relationKey(userA, userB)]
	if !ok {
		return []chat.Message{}, nil
	}
	msgs := s.messages[id]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]chat.Message{}, msgs...), nil
}

// testEnv bundles a wired controller with its fakes.
type testEnv struct {
	ctrl     *Controller
	sessions *SessionRegistry
	locks    *LockRegistry
	relay    *MessageRelay
	zones    *fakeZoneStore
	users    *fakeUserStore
	msgs     *fakeMessageStore
}

func newTestEnv(releaseLocks bool, zones []*zone.Zone, users []*user.User) *testEnv {
	usernames := make(map[string]string)
	for _, u := range users {
		usernames[u.ID] = u.Username
	}

	env := &testEnv{
		sessions: NewSessionRegistry(),
		locks:    NewLockRegistry(),
		zones:    newFakeZoneStore(zones...),
		users:    newFakeUserStore(users...),
		msgs:     newFakeMessageStore(usernames),
	}
	env.relay = NewMessageRelay(env.sessions, env.msgs)
	env.ctrl = NewController(env.sessions, env.locks, env.relay, env.zones, env.users, releaseLocks)
	return env
}

// connect builds a client handle for the user, runs the init handshake and
// discards the frames it produced.
func (env *testEnv) connect(id, username string) *Client {
	c := NewClient(env.ctrl, nil, user.Ref{ID: id, Username: username})
	env.ctrl.Init(c)
	drainFrames(c)
	return c
}

// dispatch marshals the payload and routes the event through the controller.
func dispatch(t *testing.T, ctrl *Controller, c *Client, event string, payload any) {
	t.Helper()

	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal %s payload: %v", event, err)
	}
	ctrl.Dispatch(c, event, raw)
}

// recvEvent pops the next queued frame from the client, failing if none.
func recvEvent(t *testing.T, c *Client) (string, json.RawMessage) {
	t.Helper()

	select {
	case raw := <-c.send:
		var env struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("unmarshal frame: %v", err)
		}
		return env.Event, env.Data
	default:
		t.Fatal("no frame queued")
		return "", nil
	}
}

// recvNamed drains frames until one matches the event name, failing when the
// queue empties first.
func recvNamed(t *testing.T, c *Client, event string) json.RawMessage {
	t.Helper()

	for {
		select {
		case raw := <-c.send:
			var env struct {
				Event string          `json:"event"`
				Data  json.RawMessage `json:"data"`
			}
			if err := json.Unmarshal(raw, &env); err != nil {
				t.Fatalf("unmarshal frame: %v", err)
			}
			if env.Event == event {
				return env.Data
			}
		default:
			t.Fatalf("no %s frame queued", event)
			return nil
		}
	}
}

// drainFrames empties the client's queue.
func drainFrames(c *Client) {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}

func decodeInto(t *testing.T, raw json.RawMessage, dst any) {
	t.Helper()

	if err := json.Unmarshal(raw, dst); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
}

// testZone builds a zone with the given nodes.
func testZone(id string, nodes ...*zone.Node) *zone.Zone {
	return &zone.Zone{
		ID:    id,
		Name:  "Zone " + id,
		Nodes: nodes,
	}
}

func testNode(id, nodeType string) *zone.Node {
	return &zone.Node{
		ID:    id,
		Type:  nodeType,
		Scale: zone.Vector3{X: 1, Y: 1, Z: 1},
	}
}
