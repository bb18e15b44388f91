package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qiminjie89/gochat/internal/protocol"
	"github.com/qiminjie89/gochat/internal/store"
)

type recordingSender struct {
	sent []protocol.Message
}

func (r *recordingSender) Send(msg protocol.Message) {
	r.sent = append(r.sent, msg)
}

// fakeAuth 只接受固定的一对凭据
type fakeAuth struct {
	login, password string
}

func (f *fakeAuth) CredentialsValid(login, password string) (bool, error) {
	return login == f.login && password == f.password, nil
}

type testServer struct {
	srv     *Server
	senders map[*Session]*recordingSender
}

func newTestServer(auth Authenticator, contacts ContactStore, history HistoryRecorder) *testServer {
	return &testServer{
		srv:     NewServer(NewRegistry(), NewRoomManager(), auth, contacts, history),
		senders: make(map[*Session]*recordingSender),
	}
}

func (ts *testServer) connect() *Session {
	sender := &recordingSender{}
	sess := NewSession(sender)
	ts.senders[sess] = sender
	ts.srv.OnClientConnected(sess)
	return sess
}

func (ts *testServer) route(t *testing.T, sess *Session, msg protocol.ClientMessage) {
	t.Helper()
	require.NoError(t, ts.srv.Route(sess, msg))
}

func (ts *testServer) login(t *testing.T, name string) *Session {
	t.Helper()
	sess := ts.connect()
	ts.route(t, sess, protocol.Authenticate{Login: name, Password: "secret"})
	require.True(t, sess.Authed)
	ts.senders[sess].sent = nil
	return sess
}

func (ts *testServer) sent(sess *Session) []protocol.Message {
	return ts.senders[sess].sent
}

func (ts *testServer) lastResponse(t *testing.T, sess *Session) protocol.Response {
	t.Helper()
	sent := ts.sent(sess)
	require.NotEmpty(t, sent)
	resp, ok := sent[len(sent)-1].(protocol.Response)
	require.True(t, ok, "last message is %T", sent[len(sent)-1])
	return resp
}

func TestUnauthedMessagesRejected(t *testing.T) {
	msgs := []protocol.ClientMessage{
		protocol.Presence{Status: protocol.StatusOnline},
		protocol.Chat{To: "bob", Message: "hi"},
		protocol.Join{Room: "#lobby"},
		protocol.Leave{Room: "#lobby"},
		protocol.AddContact{User: "bob"},
		protocol.RemoveContact{User: "bob"},
		protocol.GetContacts{},
	}

	for _, msg := range msgs {
		ts := newTestServer(nil, nil, nil)
		sess := ts.connect()
		ts.route(t, sess, msg)

		resp := ts.lastResponse(t, sess)
		assert.Equal(t, protocol.CodeUnauthorized, resp.Code, "%T", msg)
		assert.Equal(t, "Allowed only for authed users", resp.Message, "%T", msg)
		// 连接保持打开
		assert.False(t, sess.PendingDisconnect, "%T", msg)
	}
}

func TestAuthSuccess(t *testing.T) {
	ts := newTestServer(nil, nil, nil)
	sess := ts.connect()
	ts.route(t, sess, protocol.Authenticate{Login: "alice", Password: "x"})

	assert.True(t, sess.Authed)
	assert.Equal(t, "alice", sess.Name)
	resp := ts.lastResponse(t, sess)
	assert.Equal(t, protocol.CodeOK, resp.Code)
	assert.Equal(t, "Login successful", resp.Message)
	assert.Equal(t, 1, ts.srv.Sessions())
}

func TestAuthRejectsRoomLikeName(t *testing.T) {
	ts := newTestServer(nil, nil, nil)
	sess := ts.connect()
	ts.route(t, sess, protocol.Authenticate{Login: "#alice", Password: "x"})

	assert.False(t, sess.Authed)
	resp := ts.lastResponse(t, sess)
	assert.Equal(t, protocol.CodeBadRequest, resp.Code)
	assert.Equal(t, "Invalid name", resp.Message)
}

func TestAuthInvalidCredentials(t *testing.T) {
	ts := newTestServer(&fakeAuth{login: "alice", password: "right"}, nil, nil)
	sess := ts.connect()
	ts.route(t, sess, protocol.Authenticate{Login: "alice", Password: "wrong"})

	assert.False(t, sess.Authed)
	resp := ts.lastResponse(t, sess)
	assert.Equal(t, protocol.CodeUnauthorized, resp.Code)
	assert.Equal(t, "Invalid credentials", resp.Message)

	ts.route(t, sess, protocol.Authenticate{Login: "alice", Password: "right"})
	assert.True(t, sess.Authed)
}

func TestDuplicateLoginSupersedes(t *testing.T) {
	ts := newTestServer(nil, nil, nil)
	first := ts.login(t, "alice")
	second := ts.connect()
	ts.route(t, second, protocol.Authenticate{Login: "alice", Password: "x"})

	assert.True(t, second.Authed)
	assert.True(t, first.PendingDisconnect)
	assert.False(t, second.PendingDisconnect)
	assert.Equal(t, 1, ts.srv.Sessions())

	// 旧会话断开时不能把新注册一起清掉
	ts.srv.OnClientDisconnected(first)
	assert.Equal(t, 1, ts.srv.Sessions())
}

func TestReauthSameConnection(t *testing.T) {
	ts := newTestServer(nil, nil, nil)
	sess := ts.login(t, "alice")
	ts.route(t, sess, protocol.Authenticate{Login: "alice2", Password: "x"})

	assert.Equal(t, "alice2", sess.Name)
	assert.Equal(t, 1, ts.srv.Sessions())
}

func TestQuitWithoutAuth(t *testing.T) {
	ts := newTestServer(nil, nil, nil)
	sess := ts.connect()
	ts.route(t, sess, protocol.Quit{})

	assert.True(t, sess.PendingDisconnect)
	assert.Empty(t, ts.sent(sess))
}

func TestDirectChat(t *testing.T) {
	ts := newTestServer(nil, nil, nil)
	alice := ts.login(t, "alice")
	bob := ts.login(t, "bob")

	ts.route(t, alice, protocol.Chat{To: "bob", Message: "hi"})

	require.Len(t, ts.sent(bob), 1)
	assert.Equal(t, protocol.ChatToClient{Sender: "alice", Message: "hi"}, ts.sent(bob)[0])
	assert.Empty(t, ts.sent(alice))
}

func TestChatToUnknownRecipientDropped(t *testing.T) {
	ts := newTestServer(nil, nil, nil)
	alice := ts.login(t, "alice")

	ts.route(t, alice, protocol.Chat{To: "nobody", Message: "hi"})

	// 静默丢弃,发送方不收到错误
	assert.Empty(t, ts.sent(alice))
}

func TestChatToSelfDropped(t *testing.T) {
	ts := newTestServer(nil, nil, nil)
	alice := ts.login(t, "alice")

	ts.route(t, alice, protocol.Chat{To: "alice", Message: "hi"})

	assert.Empty(t, ts.sent(alice))
}

func TestRoomChatFanOut(t *testing.T) {
	ts := newTestServer(nil, nil, nil)
	alice := ts.login(t, "alice")
	bob := ts.login(t, "bob")
	carol := ts.login(t, "carol")

	ts.route(t, alice, protocol.Join{Room: "#lobby"})
	ts.route(t, bob, protocol.Join{Room: "#lobby"})

	ts.route(t, alice, protocol.Chat{To: "#lobby", Message: "hello all"})

	want := protocol.ChatToClient{Sender: "alice", Message: "hello all", Room: "#lobby"}
	require.Len(t, ts.sent(bob), 1)
	assert.Equal(t, want, ts.sent(bob)[0])
	// 发送者和非成员都不收到
	assert.Empty(t, ts.sent(alice))
	assert.Empty(t, ts.sent(carol))
}

func TestChatToNonexistentRoomDropped(t *testing.T) {
	ts := newTestServer(nil, nil, nil)
	alice := ts.login(t, "alice")

	ts.route(t, alice, protocol.Chat{To: "#nowhere", Message: "hi"})

	assert.Empty(t, ts.sent(alice))
}

func TestJoinInvalidRoomNameIsProtocolError(t *testing.T) {
	ts := newTestServer(nil, nil, nil)
	alice := ts.login(t, "alice")

	err := ts.srv.Route(alice, protocol.Join{Room: "lobby"})
	assert.ErrorIs(t, err, protocol.ErrInvalidRoomName)

	err = ts.srv.Route(alice, protocol.Leave{Room: "bad room"})
	assert.ErrorIs(t, err, protocol.ErrInvalidRoomName)
}

func TestLeaveUnknownRoomIsNoOp(t *testing.T) {
	ts := newTestServer(nil, nil, nil)
	alice := ts.login(t, "alice")

	ts.route(t, alice, protocol.Leave{Room: "#nowhere"})
	assert.Empty(t, ts.sent(alice))
}

func TestDisconnectCleanup(t *testing.T) {
	ts := newTestServer(nil, nil, nil)
	alice := ts.login(t, "alice")
	bob := ts.login(t, "bob")
	ts.route(t, alice, protocol.Join{Room: "#lobby"})
	ts.route(t, bob, protocol.Join{Room: "#lobby"})

	ts.srv.OnClientDisconnected(alice)

	assert.Equal(t, 1, ts.srv.Sessions())
	assert.Equal(t, 1, ts.srv.Rooms().MemberCount("#lobby"))

	// 断开后同名可以重新登录
	again := ts.connect()
	ts.route(t, again, protocol.Authenticate{Login: "alice", Password: "x"})
	assert.True(t, again.Authed)
}

func TestSendProbesOnlyToAuthed(t *testing.T) {
	ts := newTestServer(nil, nil, nil)
	alice := ts.login(t, "alice")
	stranger := ts.connect()

	ts.srv.SendProbes()

	require.Len(t, ts.sent(alice), 1)
	assert.Equal(t, protocol.Probe{}, ts.sent(alice)[0])
	assert.Empty(t, ts.sent(stranger))
}

// fakeContacts 内存联系人存储
type fakeContacts struct {
	known map[string]bool
	lists map[string][]string
}

func (f *fakeContacts) AddContact(owner, contact string) error {
	if owner == contact {
		return store.ErrSelfContact
	}
	if !f.known[contact] {
		return store.ErrUserNotFound
	}
	f.lists[owner] = append(f.lists[owner], contact)
	return nil
}

func (f *fakeContacts) RemoveContact(owner, contact string) error {
	list := f.lists[owner]
	for i, c := range list {
		if c == contact {
			f.lists[owner] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeContacts) Contacts(owner string) ([]string, error) {
	return f.lists[owner], nil
}

// fakeHistory 记录历史调用的顺序
type fakeHistory struct {
	events []string
}

func (f *fakeHistory) RecordLogin(user string) error {
	f.events = append(f.events, "login:"+user)
	return nil
}

func (f *fakeHistory) RecordLogout(user string) error {
	f.events = append(f.events, "logout:"+user)
	return nil
}

func TestHistoryRecording(t *testing.T) {
	history := &fakeHistory{}
	ts := newTestServer(nil, nil, history)

	alice := ts.login(t, "alice")
	ts.srv.OnClientDisconnected(alice)

	assert.Equal(t, []string{"login:alice", "logout:alice"}, history.events)
}

func TestHistorySkipsUnauthedDisconnect(t *testing.T) {
	history := &fakeHistory{}
	ts := newTestServer(nil, nil, history)

	stranger := ts.connect()
	ts.srv.OnClientDisconnected(stranger)

	assert.Empty(t, history.events)
}

func TestHistoryNotRecordedOnRejectedAuth(t *testing.T) {
	history := &fakeHistory{}
	ts := newTestServer(&fakeAuth{login: "alice", password: "right"}, nil, history)

	sess := ts.connect()
	ts.route(t, sess, protocol.Authenticate{Login: "alice", Password: "wrong"})

	assert.Empty(t, history.events)
}

func TestContactsWithoutStore(t *testing.T) {
	ts := newTestServer(nil, nil, nil)
	alice := ts.login(t, "alice")

	ts.route(t, alice, protocol.AddContact{User: "bob"})

	resp := ts.lastResponse(t, alice)
	assert.Equal(t, protocol.CodeBadRequest, resp.Code)
	assert.Equal(t, "Contacts not available", resp.Message)
}

func TestContactOperations(t *testing.T) {
	contacts := &fakeContacts{
		known: map[string]bool{"bob": true, "carol": true},
		lists: make(map[string][]string),
	}
	ts := newTestServer(nil, contacts, nil)
	alice := ts.login(t, "alice")

	ts.route(t, alice, protocol.AddContact{User: "bob"})
	resp := ts.lastResponse(t, alice)
	assert.Equal(t, protocol.CodeOK, resp.Code)
	assert.Equal(t, "Contact added", resp.Message)

	ts.route(t, alice, protocol.AddContact{User: "carol"})
	ts.route(t, alice, protocol.GetContacts{})
	resp = ts.lastResponse(t, alice)
	assert.Equal(t, protocol.CodeAccepted, resp.Code)
	assert.Equal(t, "bob,carol", resp.Message)

	ts.route(t, alice, protocol.RemoveContact{User: "bob"})
	resp = ts.lastResponse(t, alice)
	assert.Equal(t, "Contact removed", resp.Message)

	ts.route(t, alice, protocol.GetContacts{})
	resp = ts.lastResponse(t, alice)
	assert.Equal(t, "carol", resp.Message)
}

func TestContactErrors(t *testing.T) {
	contacts := &fakeContacts{known: map[string]bool{}, lists: make(map[string][]string)}
	ts := newTestServer(nil, contacts, nil)
	alice := ts.login(t, "alice")

	ts.route(t, alice, protocol.AddContact{User: "ghost"})
	resp := ts.lastResponse(t, alice)
	assert.Equal(t, protocol.CodeBadRequest, resp.Code)
	assert.Equal(t, "No such user", resp.Message)

	ts.route(t, alice, protocol.AddContact{User: "alice"})
	resp = ts.lastResponse(t, alice)
	assert.Equal(t, "Can't add self to contacts", resp.Message)
}
