package client

import (
	"github.com/qiminjie89/gochat/internal/protocol"
	"github.com/qiminjie89/gochat/pkg/logger"
	"go.uber.org/zap"
)

// State 客户端协议状态
type State int

const (
	// StateStart 初始状态,尚未发送登录
	StateStart State = iota
	// StateLoginSent 已发送登录,等待服务端应答
	StateLoginSent
	// StateLoggedIn 登录成功,可收发消息
	StateLoggedIn
	// StateFinish 会话结束
	StateFinish
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateLoginSent:
		return "login_sent"
	case StateLoggedIn:
		return "logged_in"
	case StateFinish:
		return "finish"
	default:
		return "unknown"
	}
}

// Sender 向服务端发送一条消息
type Sender interface {
	Send(msg protocol.Message)
}

// ChatHandler 收到聊天消息时的回调,room 为空表示私聊
type ChatHandler func(sender, message, room string)

// Client 客户端协议状态机。所有方法必须在同一个 goroutine
// (事件循环)中调用,内部不加锁。
type Client struct {
	state      State
	sender     Sender
	disconnect func()
	onChat     ChatHandler
	onLogin    func()
}

// NewClient 创建客户端状态机。disconnect 在会话结束时调用一次,
// onChat 在收到聊天消息时调用。
func NewClient(sender Sender, disconnect func(), onChat ChatHandler) *Client {
	return &Client{
		state:      StateStart,
		sender:     sender,
		disconnect: disconnect,
		onChat:     onChat,
	}
}

// State 返回当前状态
func (c *Client) State() State {
	return c.state
}

// OnLogin 设置登录成功后的回调
func (c *Client) OnLogin(f func()) {
	c.onLogin = f
}

// Login 发送登录请求。仅在初始状态有效,其它状态下为空操作。
func (c *Client) Login(name, password string) {
	if c.state != StateStart {
		return
	}
	c.state = StateLoginSent
	c.sender.Send(protocol.Authenticate{Login: name, Password: password})
}

// SendMsg 发送聊天消息,to 可以是用户名或房间名
func (c *Client) SendMsg(to, message string) {
	if c.state != StateLoggedIn {
		return
	}
	c.sender.Send(protocol.Chat{To: to, Message: message})
}

// JoinRoom 加入房间
func (c *Client) JoinRoom(room string) error {
	if c.state != StateLoggedIn {
		return nil
	}
	if !protocol.ValidRoomName(room) {
		return protocol.ErrInvalidRoomName
	}
	c.sender.Send(protocol.Join{Room: room})
	return nil
}

// LeaveRoom 离开房间
func (c *Client) LeaveRoom(room string) error {
	if c.state != StateLoggedIn {
		return nil
	}
	if !protocol.ValidRoomName(room) {
		return protocol.ErrInvalidRoomName
	}
	c.sender.Send(protocol.Leave{Room: room})
	return nil
}

// AddContact 添加联系人
func (c *Client) AddContact(user string) {
	if c.state != StateLoggedIn {
		return
	}
	c.sender.Send(protocol.AddContact{User: user})
}

// RemoveContact 删除联系人
func (c *Client) RemoveContact(user string) {
	if c.state != StateLoggedIn {
		return
	}
	c.sender.Send(protocol.RemoveContact{User: user})
}

// GetContacts 请求联系人列表
func (c *Client) GetContacts() {
	if c.state != StateLoggedIn {
		return
	}
	c.sender.Send(protocol.GetContacts{})
}

// Quit 请求退出会话
func (c *Client) Quit() {
	if c.state != StateLoggedIn {
		return
	}
	c.state = StateFinish
	c.sender.Send(protocol.Quit{})
	c.disconnect()
}

// Route 处理一条服务端消息
func (c *Client) Route(msg protocol.ServerMessage) {
	switch m := msg.(type) {
	case protocol.Response:
		c.onResponse(m)
	case protocol.ChatToClient:
		if c.onChat != nil {
			c.onChat(m.Sender, m.Message, m.Room)
		}
	case protocol.Probe:
		// 保活探测,无需应答
	}
}

func (c *Client) onResponse(resp protocol.Response) {
	switch c.state {
	case StateLoginSent:
		if resp.Code == protocol.CodeOK {
			c.state = StateLoggedIn
			c.sender.Send(protocol.Presence{Status: protocol.StatusOnline})
			logger.Info("logged in", zap.String("message", resp.Message))
			if c.onLogin != nil {
				c.onLogin()
			}
			return
		}
		logger.Warn("login rejected",
			zap.Int("code", resp.Code),
			zap.String("message", resp.Message),
		)
		c.state = StateFinish
		c.disconnect()
	case StateLoggedIn:
		logger.Debug("server response",
			zap.Int("code", resp.Code),
			zap.String("message", resp.Message),
		)
	}
}
