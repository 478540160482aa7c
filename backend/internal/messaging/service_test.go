package messaging

import (
	"context"
	"sync"
	"testing"

	"circlenet/backend/internal/graph"
	"circlenet/backend/internal/matrix"
	apperrors "circlenet/backend/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalpart(t *testing.T) {
	assert.Equal(t, "cn_0f8fad5bd9cb469fa16570867728950e", Localpart("0F8FAD5B-D9CB-469F-A165-70867728950E"))
}

func TestEnsureMatrixProfile_RegistersOnce(t *testing.T) {
	f := newFixture(t, Options{}, "alice")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := f.svc.EnsureMatrixProfile(ctx, "alice")
			assert.NoError(t, err)
			assert.Equal(t, "@cn_alice:test", p.MatrixUserID)
		}()
	}
	wg.Wait()

	p, err := f.svc.EnsureMatrixProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "tok-cn_alice", p.AccessToken)
	assert.Equal(t, 1, f.hs.registered)
}

func TestGetOrCreateDirectRoom(t *testing.T) {
	f := newFixture(t, Options{}, "alice", "bob")
	ctx := context.Background()

	cv, err := f.svc.GetOrCreateDirectRoom(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, "!r1:test", cv.RoomID)
	assert.True(t, cv.IsDirect)

	require.Len(t, f.hs.rooms, 1)
	assert.Equal(t, matrix.PresetTrustedPrivateChat, f.hs.rooms[0].Preset)
	assert.True(t, f.hs.rooms[0].IsDirect)
	assert.Equal(t, []string{"@cn_bob:test"}, f.hs.rooms[0].Invite)
	assert.Contains(t, f.hs.actions, "join @cn_bob:test !r1:test")

	assert.Equal(t, map[string][]string{"@cn_bob:test": {"!r1:test"}}, f.hs.direct["@cn_alice:test"])
	assert.Equal(t, map[string][]string{"@cn_alice:test": {"!r1:test"}}, f.hs.direct["@cn_bob:test"])

	again, err := f.svc.GetOrCreateDirectRoom(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, cv.UID, again.UID)
	assert.Len(t, f.hs.rooms, 1)

	list, err := f.svc.ListConversations(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestGetOrCreateDirectRoom_PeerJoinFails(t *testing.T) {
	f := newFixture(t, Options{}, "alice", "bob")
	f.hs.failJoin["@cn_bob:test"] = true
	ctx := context.Background()

	_, err := f.svc.GetOrCreateDirectRoom(ctx, "alice", "bob")
	require.Error(t, err)
	assert.Contains(t, f.hs.actions, "leave @cn_alice:test  !r1:test")
	assert.Empty(t, f.graph.conversations)

	f.hs.failJoin["@cn_bob:test"] = false
	cv, err := f.svc.GetOrCreateDirectRoom(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, "!r2:test", cv.RoomID)
}

func TestGetOrCreateDirectRoom_CancelledCallerDoesNotFailSharedCall(t *testing.T) {
	f := newFixture(t, Options{}, "alice", "bob")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cv, err := f.svc.GetOrCreateDirectRoom(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, "!r1:test", cv.RoomID)

	again, err := f.svc.GetOrCreateDirectRoom(context.Background(), "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, cv.UID, again.UID)
	assert.Len(t, f.hs.rooms, 1)
}

func TestGetOrCreateDirectRoom_Validation(t *testing.T) {
	f := newFixture(t, Options{}, "alice")
	ctx := context.Background()

	_, err := f.svc.GetOrCreateDirectRoom(ctx, "alice", "alice")
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeValidation))
	_, err = f.svc.GetOrCreateDirectRoom(ctx, "alice", "ghost")
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeNotFound))
}

func TestMergeDirectRooms(t *testing.T) {
	original := map[string][]string{"@bob:test": {"!a:test"}}

	merged, changed := MergeDirectRooms(original, "@bob:test", "!b:test")
	assert.True(t, changed)
	assert.Equal(t, []string{"!a:test", "!b:test"}, merged["@bob:test"])
	assert.Equal(t, []string{"!a:test"}, original["@bob:test"], "input is not modified")

	_, changed = MergeDirectRooms(merged, "@bob:test", "!a:test")
	assert.False(t, changed)

	fresh, changed := MergeDirectRooms(nil, "@carol:test", "!c:test")
	assert.True(t, changed)
	assert.Equal(t, map[string][]string{"@carol:test": {"!c:test"}}, fresh)
}

func TestSendMessage(t *testing.T) {
	f := newFixture(t, Options{}, "alice", "bob")
	ctx := context.Background()
	cv, err := f.svc.GetOrCreateDirectRoom(ctx, "alice", "bob")
	require.NoError(t, err)

	msg, err := f.svc.SendMessage(ctx, "alice", cv.RoomID, "  look https://example.test/post  ", "$parent")
	require.NoError(t, err)
	assert.Equal(t, "$e1", msg.EventID)
	assert.Equal(t, "look https://example.test/post", msg.Body)
	require.NotNil(t, msg.LinkPreview)
	assert.Equal(t, "Example", msg.LinkPreview.Title)
	require.Len(t, f.graph.messages, 1)

	sent := f.hs.sent[0]
	assert.Equal(t, matrix.EventRoomMessage, sent["_type"])
	relates := sent["m.relates_to"].(map[string]interface{})
	assert.Equal(t, "$parent", relates["m.in_reply_to"].(map[string]interface{})["event_id"])
}

func TestSendMessage_Access(t *testing.T) {
	f := newFixture(t, Options{}, "alice")
	ctx := context.Background()

	_, err := f.svc.SendMessage(ctx, "alice", "!nope:test", "hi", "")
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeForbidden))

	f.graph.access["!c:test|alice"] = graph.RoomAccess{Allowed: true, Muted: true, CommunityUID: "c1"}
	_, err = f.svc.SendMessage(ctx, "alice", "!c:test", "hi", "")
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeForbidden))

	_, err = f.svc.SendMessage(ctx, "alice", "!c:test", "   ", "")
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeValidation))
	assert.Empty(t, f.hs.sent)
}

func TestFetchMessages(t *testing.T) {
	f := newFixture(t, Options{}, "alice")
	f.graph.access["!c:test|alice"] = graph.RoomAccess{Allowed: true, Muted: true}

	page, err := f.svc.FetchMessages(context.Background(), "alice", "!c:test", "t-prev", 500)
	require.NoError(t, err)
	assert.Equal(t, "t-prev", page.Start)
	assert.Equal(t, "t-next", page.End)
	require.Len(t, page.Events, 1)
	assert.Equal(t, "$old", page.Events[0].EventID)

	_, err = f.svc.FetchMessages(context.Background(), "alice", "!other:test", "", 0)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeForbidden))
}

func TestReact(t *testing.T) {
	f := newFixture(t, Options{}, "alice")
	f.graph.access["!c:test|alice"] = graph.RoomAccess{Allowed: true}

	reaction, err := f.svc.React(context.Background(), "alice", "!c:test", "$target", "👍")
	require.NoError(t, err)
	assert.Equal(t, "$target", reaction.TargetID)
	require.Len(t, f.graph.reactions, 1)

	sent := f.hs.sent[0]
	assert.Equal(t, matrix.EventReaction, sent["_type"])
	relates := sent["m.relates_to"].(map[string]interface{})
	assert.Equal(t, "m.annotation", relates["rel_type"])
	assert.Equal(t, "👍", relates["key"])

	_, err = f.svc.React(context.Background(), "alice", "!c:test", "$target", "")
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeValidation))
}

func setupCommunity(f *fixture) {
	f.graph.communities["c1"] = &graph.Community{UID: "c1", RoomID: "!c:test"}
	f.graph.members["c1"] = map[string]string{
		"admin": graph.RoleAdmin,
		"mod":   graph.RoleModerator,
		"alice": graph.RoleMember,
	}
}

func TestModeration(t *testing.T) {
	f := newFixture(t, Options{}, "admin", "mod", "alice", "bob")
	setupCommunity(f)
	ctx := context.Background()

	require.NoError(t, f.svc.Kick(ctx, "mod", "c1", "alice", "spam"))
	assert.Contains(t, f.hs.actions, "kick @cn_mod:test @cn_alice:test !c:test")
	assert.NotContains(t, f.graph.members["c1"], "alice")

	err := f.svc.Ban(ctx, "mod", "c1", "admin", "")
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeForbidden))

	err = f.svc.Kick(ctx, "bob", "c1", "mod", "")
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeForbidden), "non members cannot moderate")

	err = f.svc.Kick(ctx, "admin", "c1", "bob", "")
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeNotFound))

	require.NoError(t, f.svc.Ban(ctx, "admin", "c1", "bob", "troll"))
	require.NoError(t, f.svc.Unban(ctx, "admin", "c1", "bob", ""))
	assert.Contains(t, f.hs.actions, "ban @cn_admin:test @cn_bob:test !c:test")
	assert.Contains(t, f.hs.actions, "unban @cn_admin:test @cn_bob:test !c:test")

	err = f.svc.Kick(ctx, "admin", "c1", "admin", "")
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeValidation))
}

func TestCommunityRooms_WithServiceAccount(t *testing.T) {
	f := newFixture(t, Options{BotUserID: "@bot:test", BotAccessToken: "bot-token"}, "admin", "alice")
	ctx := context.Background()

	roomID, err := f.svc.CreateCommunityRoom(ctx, "admin", "Gophers", "Go people", true)
	require.NoError(t, err)
	assert.Equal(t, "!r1:test", roomID)
	assert.Equal(t, []string{"@bot:test"}, f.hs.creators)
	assert.Equal(t, matrix.PresetPublicChat, f.hs.rooms[0].Preset)
	assert.Equal(t, []string{"@cn_admin:test"}, f.hs.rooms[0].Invite)
	assert.Contains(t, f.hs.actions, "join @cn_admin:test !r1:test")

	require.NoError(t, f.svc.AddToRoom(ctx, "admin", roomID, "alice"))
	assert.Contains(t, f.hs.actions, "invite @bot:test @cn_alice:test !r1:test")
	assert.Contains(t, f.hs.actions, "join @cn_alice:test !r1:test")

	eventID, err := f.svc.Announce(ctx, "admin", roomID, "Welcome!")
	require.NoError(t, err)
	assert.NotEmpty(t, eventID)
}

func TestCommunityRooms_WithoutServiceAccount(t *testing.T) {
	f := newFixture(t, Options{}, "admin")
	ctx := context.Background()

	_, err := f.svc.CreateCommunityRoom(ctx, "admin", "Secret", "", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"@cn_admin:test"}, f.hs.creators)
	assert.Equal(t, matrix.PresetPrivateChat, f.hs.rooms[0].Preset)
	assert.Empty(t, f.hs.rooms[0].Invite)

	require.NoError(t, f.svc.LeaveCommunityRoom(ctx, "admin", "!r1:test"))
	assert.Contains(t, f.hs.actions, "leave @cn_admin:test  !r1:test")
}

func TestCreateCommunityRoom_CreatorJoinFails(t *testing.T) {
	f := newFixture(t, Options{BotUserID: "@bot:test", BotAccessToken: "bot-token"}, "admin")
	f.hs.failJoin["@cn_admin:test"] = true

	_, err := f.svc.CreateCommunityRoom(context.Background(), "admin", "Gophers", "", true)
	require.Error(t, err)
	assert.Contains(t, f.hs.actions, "leave @bot:test  !r1:test")
}

func TestDiscardCommunityRoom(t *testing.T) {
	f := newFixture(t, Options{BotUserID: "@bot:test", BotAccessToken: "bot-token"}, "admin")
	ctx := context.Background()

	roomID, err := f.svc.CreateCommunityRoom(ctx, "admin", "Gophers", "", true)
	require.NoError(t, err)

	require.NoError(t, f.svc.DiscardCommunityRoom(ctx, "admin", roomID))
	assert.Contains(t, f.hs.actions, "leave @cn_admin:test  !r1:test")
	assert.Contains(t, f.hs.actions, "leave @bot:test  !r1:test")
}
