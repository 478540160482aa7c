package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"circlenet/backend/internal/graph"
	"circlenet/backend/internal/matrix"
	"circlenet/backend/internal/store"
	apperrors "circlenet/backend/pkg/errors"

	"github.com/stretchr/testify/require"
)

// homeserver is a minimal in-memory client-server API
type homeserver struct {
	mu         sync.Mutex
	registered int
	rooms      []matrix.CreateRoomRequest
	creators   []string
	actions    []string
	sent       []map[string]interface{}
	direct     map[string]map[string][]string
	failJoin   map[string]bool
}

func newHomeserver() *homeserver {
	return &homeserver{direct: map[string]map[string][]string{}, failJoin: map[string]bool{}}
}

func (h *homeserver) caller(r *http.Request) string {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "bot-token" {
		return "@bot:test"
	}
	return "@" + strings.TrimPrefix(token, "tok-") + ":test"
}

func reply(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *homeserver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var body map[string]interface{}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	path := strings.TrimPrefix(r.URL.Path, "/_matrix/client/v3/")

	switch {
	case path == "register":
		if body["auth"] == nil {
			reply(w, http.StatusUnauthorized, map[string]interface{}{"session": "uiaa"})
			return
		}
		h.registered++
		username := body["username"].(string)
		reply(w, http.StatusOK, matrix.AuthResponse{UserID: "@" + username + ":test", AccessToken: "tok-" + username, DeviceID: "DEV"})

	case path == "createRoom":
		raw, _ := json.Marshal(body)
		var req matrix.CreateRoomRequest
		_ = json.Unmarshal(raw, &req)
		h.rooms = append(h.rooms, req)
		h.creators = append(h.creators, h.caller(r))
		reply(w, http.StatusOK, map[string]string{"room_id": fmt.Sprintf("!r%d:test", len(h.rooms))})

	case strings.HasPrefix(path, "join/"):
		room := strings.TrimPrefix(path, "join/")
		if h.failJoin[h.caller(r)] {
			reply(w, http.StatusForbidden, map[string]string{"errcode": "M_FORBIDDEN", "error": "join refused"})
			return
		}
		h.actions = append(h.actions, "join "+h.caller(r)+" "+room)
		reply(w, http.StatusOK, map[string]string{"room_id": room})

	case strings.HasPrefix(path, "rooms/"):
		parts := strings.SplitN(strings.TrimPrefix(path, "rooms/"), "/", 3)
		room, verb := parts[0], parts[1]
		switch verb {
		case "send":
			body["_type"] = strings.SplitN(parts[2], "/", 2)[0]
			h.sent = append(h.sent, body)
			reply(w, http.StatusOK, map[string]string{"event_id": fmt.Sprintf("$e%d", len(h.sent))})
		case "messages":
			reply(w, http.StatusOK, map[string]interface{}{
				"start": r.URL.Query().Get("from"),
				"end":   "t-next",
				"chunk": []map[string]interface{}{{"event_id": "$old", "type": "m.room.message", "sender": "@cn_bob:test", "content": map[string]string{"body": "hi"}}},
			})
		default:
			target, _ := body["user_id"].(string)
			h.actions = append(h.actions, strings.TrimSpace(verb+" "+h.caller(r)+" "+target+" "+room))
			reply(w, http.StatusOK, map[string]string{})
		}

	case strings.HasPrefix(path, "user/"):
		user := strings.SplitN(strings.TrimPrefix(path, "user/"), "/", 2)[0]
		if r.Method == http.MethodGet {
			d, ok := h.direct[user]
			if !ok {
				reply(w, http.StatusNotFound, map[string]string{"errcode": "M_NOT_FOUND", "error": "not found"})
				return
			}
			reply(w, http.StatusOK, d)
			return
		}
		d := map[string][]string{}
		for k, v := range body {
			for _, id := range v.([]interface{}) {
				d[k] = append(d[k], id.(string))
			}
		}
		h.direct[user] = d
		reply(w, http.StatusOK, map[string]string{})

	default:
		reply(w, http.StatusNotFound, map[string]string{"errcode": "M_UNRECOGNIZED"})
	}
}

type fakeProfiles struct {
	mu       sync.Mutex
	profiles map[string]*store.MatrixProfile
}

func (f *fakeProfiles) GetMatrixProfile(_ context.Context, userID string) (*store.MatrixProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[userID]
	if !ok {
		return nil, apperrors.NewNotFound("matrix profile", userID)
	}
	return p, nil
}

func (f *fakeProfiles) SaveMatrixProfile(_ context.Context, p *store.MatrixProfile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[p.UserID] = p
	return nil
}

type fakeGraph struct {
	mu            sync.Mutex
	users         map[string]bool
	conversations []*graph.Conversation
	access        map[string]graph.RoomAccess
	messages      []*graph.Message
	reactions     []*graph.Reaction
	communities   map[string]*graph.Community
	members       map[string]map[string]string
}

func newFakeGraph(uids ...string) *fakeGraph {
	f := &fakeGraph{
		users:       map[string]bool{},
		access:      map[string]graph.RoomAccess{},
		communities: map[string]*graph.Community{},
		members:     map[string]map[string]string{},
	}
	for _, uid := range uids {
		f.users[uid] = true
	}
	return f
}

func (f *fakeGraph) GetUser(_ context.Context, uid string) (*graph.User, error) {
	if !f.users[uid] {
		return nil, apperrors.NewNotFound("user", uid)
	}
	return &graph.User{UID: uid}, nil
}

func (f *fakeGraph) FindDirectConversation(_ context.Context, a, b string) (*graph.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, cv := range f.conversations {
		if !cv.IsDirect {
			continue
		}
		p := cv.Participants
		if (p[0] == a && p[1] == b) || (p[0] == b && p[1] == a) {
			return cv, nil
		}
	}
	return nil, nil
}

func (f *fakeGraph) CreateConversation(_ context.Context, cv *graph.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conversations = append(f.conversations, cv)
	for _, p := range cv.Participants {
		f.access[cv.RoomID+"|"+p] = graph.RoomAccess{Allowed: true}
	}
	return nil
}

func (f *fakeGraph) ListConversations(_ context.Context, userUID string) ([]graph.Conversation, error) {
	out := []graph.Conversation{}
	for _, cv := range f.conversations {
		for _, p := range cv.Participants {
			if p == userUID {
				out = append(out, *cv)
			}
		}
	}
	return out, nil
}

func (f *fakeGraph) CheckRoomAccess(_ context.Context, roomID, userUID string) (graph.RoomAccess, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.access[roomID+"|"+userUID], nil
}

func (f *fakeGraph) SaveMessage(_ context.Context, msg *graph.Message) error {
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeGraph) SaveReaction(_ context.Context, r *graph.Reaction) error {
	f.reactions = append(f.reactions, r)
	return nil
}

func (f *fakeGraph) GetCommunity(_ context.Context, uid string) (*graph.Community, error) {
	c, ok := f.communities[uid]
	if !ok {
		return nil, apperrors.NewNotFound("community", uid)
	}
	return c, nil
}

func (f *fakeGraph) GetMembership(_ context.Context, communityUID, userUID string) (*graph.Membership, error) {
	role, ok := f.members[communityUID][userUID]
	if !ok {
		return nil, nil
	}
	return &graph.Membership{CommunityUID: communityUID, UserUID: userUID, Role: role}, nil
}

func (f *fakeGraph) RemoveMember(_ context.Context, communityUID, userUID string) error {
	delete(f.members[communityUID], userUID)
	return nil
}

type stubPreviewer struct{}

func (stubPreviewer) Preview(_ context.Context, text string) *graph.LinkPreview {
	if !strings.Contains(text, "https://") {
		return nil
	}
	return &graph.LinkPreview{URL: "https://example.test", Title: "Example"}
}

type fixture struct {
	svc      *Service
	hs       *homeserver
	graph    *fakeGraph
	profiles *fakeProfiles
}

func newFixture(t *testing.T, opts Options, uids ...string) *fixture {
	t.Helper()
	hs := newHomeserver()
	server := httptest.NewServer(hs)
	t.Cleanup(server.Close)

	client, err := matrix.NewClient(matrix.Config{HomeserverURL: server.URL, RegistrationToken: "reg"}, nil)
	require.NoError(t, err)

	g := newFakeGraph(uids...)
	profiles := &fakeProfiles{profiles: map[string]*store.MatrixProfile{}}
	return &fixture{
		svc:      NewService(g, profiles, client, stubPreviewer{}, opts),
		hs:       hs,
		graph:    g,
		profiles: profiles,
	}
}
