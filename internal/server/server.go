package server

import (
	"errors"
	"strings"

	"github.com/qiminjie89/gochat/internal/protocol"
	"github.com/qiminjie89/gochat/internal/store"
	"github.com/qiminjie89/gochat/pkg/logger"
	"github.com/qiminjie89/gochat/pkg/metrics"
	"go.uber.org/zap"
)

// Authenticator 外部凭据存储在认证决策上的最小接口
type Authenticator interface {
	CredentialsValid(login, password string) (bool, error)
}

// ContactStore 外部联系人存储接口
type ContactStore interface {
	AddContact(owner, contact string) error
	RemoveContact(owner, contact string) error
	Contacts(owner string) ([]string, error)
}

// HistoryRecorder 用户历史存储接口。记录失败只影响审计,
// 不影响协议路由,错误仅记日志。
type HistoryRecorder interface {
	RecordLogin(user string) error
	RecordLogout(user string) error
}

// Server 服务端协议状态机:认证、路由、房间与联系人操作。
// 所有方法只能在事件循环 goroutine 上调用。
type Server struct {
	registry *Registry
	rooms    *RoomManager
	auth     Authenticator   // nil 时接受任意凭据(开发模式)
	contacts ContactStore    // nil 时联系人操作返回 400
	history  HistoryRecorder // nil 时不记录用户历史

	// 需要认证的处理函数,构造时用 requireAuth 包一层
	presence   func(protocol.Presence, *Session) error
	chat       func(protocol.Chat, *Session) error
	join       func(protocol.Join, *Session) error
	leave      func(protocol.Leave, *Session) error
	addContact func(protocol.AddContact, *Session) error
	delContact func(protocol.RemoveContact, *Session) error
	getContact func(protocol.GetContacts, *Session) error
}

// NewServer 创建服务端状态机
func NewServer(registry *Registry, rooms *RoomManager, auth Authenticator, contacts ContactStore, history HistoryRecorder) *Server {
	s := &Server{
		registry: registry,
		rooms:    rooms,
		auth:     auth,
		contacts: contacts,
		history:  history,
	}

	s.presence = requireAuth(s.onPresence)
	s.chat = requireAuth(s.onChat)
	s.join = requireAuth(s.onJoin)
	s.leave = requireAuth(s.onLeave)
	s.addContact = requireAuth(s.onAddContact)
	s.delContact = requireAuth(s.onRemoveContact)
	s.getContact = requireAuth(s.onGetContacts)
	return s
}

// requireAuth 认证门卫:未认证会话收到 401 应答,
// 底层处理函数不被调用,连接保持打开。
func requireAuth[M protocol.ClientMessage](h func(M, *Session) error) func(M, *Session) error {
	return func(msg M, sess *Session) error {
		if !sess.Authed {
			logger.Warn("message not allowed for unauthed user")
			sess.Send(protocol.Response{
				Code:    protocol.CodeUnauthorized,
				Message: "Allowed only for authed users",
			})
			return nil
		}
		return h(msg, sess)
	}
}

// Route 按消息类型分发。switch 穷举封闭消息集;
// 返回的错误是连接级协议错误,调用方应关闭连接。
func (s *Server) Route(sess *Session, msg protocol.ClientMessage) error {
	switch m := msg.(type) {
	case protocol.Authenticate:
		return s.onAuth(m, sess)
	case protocol.Quit:
		return s.onQuit(m, sess)
	case protocol.Presence:
		return s.presence(m, sess)
	case protocol.Chat:
		return s.chat(m, sess)
	case protocol.Join:
		return s.join(m, sess)
	case protocol.Leave:
		return s.leave(m, sess)
	case protocol.AddContact:
		return s.addContact(m, sess)
	case protocol.RemoveContact:
		return s.delContact(m, sess)
	case protocol.GetContacts:
		return s.getContact(m, sess)
	default:
		return errors.New("unsupported client message")
	}
}

// OnClientConnected 连接建立回调
func (s *Server) OnClientConnected(sess *Session) {
	logger.Debug("new client connected")
}

// OnClientDisconnected 断连清理,事件循环保证每连接恰好调用一次:
// 从注册表移除(如已认证)并退出全部房间。
func (s *Server) OnClientDisconnected(sess *Session) {
	if sess.Authed {
		s.registry.Remove(sess)
		metrics.AuthenticatedSessions.Set(float64(s.registry.Len()))
		if s.history != nil {
			if err := s.history.RecordLogout(sess.Name); err != nil {
				logger.Warn("history record failed",
					zap.String("client", sess.Name),
					zap.Error(err),
				)
			}
		}
	}
	s.rooms.LeaveAll(sess)
	logger.Debug("client disconnected", zap.String("client", sess.Name))
}

// SendProbes 向全部已认证会话广播存活探测,
// 由外部定时器经任务队列调度到事件循环上执行。
func (s *Server) SendProbes() {
	for _, sess := range s.registry.All() {
		sess.Send(protocol.Probe{})
		metrics.ProbesSent.Inc()
	}
}

// Rooms 返回房间管理器(监控端点使用)
func (s *Server) Rooms() *RoomManager {
	return s.rooms
}

// Sessions 返回已认证会话数(监控端点使用)
func (s *Server) Sessions() int {
	return s.registry.Len()
}

// onAuth 认证处理。与合法房间名撞名的登录名直接拒绝;
// 凭据校验交给外部存储;同名重复认证由新会话顶替,
// 旧会话被标记断开。
func (s *Server) onAuth(msg protocol.Authenticate, sess *Session) error {
	if protocol.ValidRoomName(msg.Login) {
		logger.Warn("auth rejected: name collides with room grammar",
			zap.String("login", msg.Login),
		)
		sess.Send(protocol.Response{Code: protocol.CodeBadRequest, Message: "Invalid name"})
		return nil
	}

	if s.auth != nil {
		ok, err := s.auth.CredentialsValid(msg.Login, msg.Password)
		if err != nil {
			logger.Error("credential store failure", zap.Error(err))
			sess.Send(protocol.Response{Code: protocol.CodeUnauthorized, Message: "Invalid credentials"})
			return nil
		}
		if !ok {
			logger.Warn("auth rejected: invalid credentials",
				zap.String("login", msg.Login),
			)
			sess.Send(protocol.Response{Code: protocol.CodeUnauthorized, Message: "Invalid credentials"})
			return nil
		}
	}

	// 同一连接重复认证:先解除旧名字的注册
	if sess.Authed {
		s.registry.Remove(sess)
	}

	sess.Name = msg.Login
	sess.Authed = true

	if old := s.registry.Add(sess); old != nil {
		logger.Warn("duplicate login supersedes previous session",
			zap.String("login", msg.Login),
		)
		old.MarkDisconnect()
	}

	metrics.AuthenticatedSessions.Set(float64(s.registry.Len()))
	logger.Info("login successful", zap.String("client", sess.Name))
	if s.history != nil {
		if err := s.history.RecordLogin(sess.Name); err != nil {
			logger.Warn("history record failed",
				zap.String("client", sess.Name),
				zap.Error(err),
			)
		}
	}
	sess.Send(protocol.Response{Code: protocol.CodeOK, Message: "Login successful"})
	return nil
}

// onQuit 不要求认证,标记断开后由事件循环送完缓冲再关闭
func (s *Server) onQuit(msg protocol.Quit, sess *Session) error {
	logger.Debug("client quit", zap.String("client", sess.Name))
	sess.MarkDisconnect()
	return nil
}

// onPresence 仅作观测,不影响路由
func (s *Server) onPresence(msg protocol.Presence, sess *Session) error {
	logger.Info("presence",
		zap.String("client", sess.Name),
		zap.String("status", string(msg.Status)),
	)
	return nil
}

// onChat 目的地匹配房间名语法时走群聊扇出,否则按私聊投递。
// 未知收件人与发给自己的消息都静默丢弃,发送方不收到错误。
func (s *Server) onChat(msg protocol.Chat, sess *Session) error {
	if protocol.ValidRoomName(msg.To) {
		s.rooms.SendMessage(msg, sess)
		return nil
	}

	dest := s.registry.Find(msg.To)
	if dest == nil {
		logger.Debug("drop chat to unknown recipient",
			zap.String("from", sess.Name),
			zap.String("to", msg.To),
		)
		return nil
	}
	if dest == sess {
		logger.Debug("drop chat to self", zap.String("client", sess.Name))
		return nil
	}

	logger.Info("user sends direct message",
		zap.String("from", sess.Name),
		zap.String("to", msg.To),
	)
	dest.Send(protocol.ChatToClient{Sender: sess.Name, Message: msg.Message})
	return nil
}

// onJoin 房间名不合语法时返回连接级协议错误
func (s *Server) onJoin(msg protocol.Join, sess *Session) error {
	return s.rooms.Join(msg.Room, sess)
}

// onLeave 房间名不合语法时返回连接级协议错误
func (s *Server) onLeave(msg protocol.Leave, sess *Session) error {
	return s.rooms.Leave(msg.Room, sess)
}

func (s *Server) onAddContact(msg protocol.AddContact, sess *Session) error {
	if s.contacts == nil {
		sess.Send(protocol.Response{Code: protocol.CodeBadRequest, Message: "Contacts not available"})
		return nil
	}

	if err := s.contacts.AddContact(sess.Name, msg.User); err != nil {
		sess.Send(protocol.Response{Code: protocol.CodeBadRequest, Message: contactErrorText(err)})
		return nil
	}
	sess.Send(protocol.Response{Code: protocol.CodeOK, Message: "Contact added"})
	return nil
}

func (s *Server) onRemoveContact(msg protocol.RemoveContact, sess *Session) error {
	if s.contacts == nil {
		sess.Send(protocol.Response{Code: protocol.CodeBadRequest, Message: "Contacts not available"})
		return nil
	}

	if err := s.contacts.RemoveContact(sess.Name, msg.User); err != nil {
		sess.Send(protocol.Response{Code: protocol.CodeBadRequest, Message: contactErrorText(err)})
		return nil
	}
	sess.Send(protocol.Response{Code: protocol.CodeOK, Message: "Contact removed"})
	return nil
}

func (s *Server) onGetContacts(msg protocol.GetContacts, sess *Session) error {
	if s.contacts == nil {
		sess.Send(protocol.Response{Code: protocol.CodeBadRequest, Message: "Contacts not available"})
		return nil
	}

	list, err := s.contacts.Contacts(sess.Name)
	if err != nil {
		logger.Error("contact store failure", zap.Error(err))
		sess.Send(protocol.Response{Code: protocol.CodeBadRequest, Message: contactErrorText(err)})
		return nil
	}
	sess.Send(protocol.Response{Code: protocol.CodeAccepted, Message: strings.Join(list, ",")})
	return nil
}

func contactErrorText(err error) string {
	switch {
	case errors.Is(err, store.ErrUserNotFound):
		return "No such user"
	case errors.Is(err, store.ErrSelfContact):
		return "Can't add self to contacts"
	default:
		return "Contact operation failed"
	}
}
