// Package server 实现聊天服务器:会话注册表、认证门卫、
// 房间管理、消息路由与网络事件循环。
// 会话、房间与注册表只在事件循环 goroutine 上修改,
// 单写者约定代替锁;其他线程的意图一律通过任务队列进入。
package server

import "github.com/qiminjie89/gochat/internal/protocol"

// Sender 向单个客户端发送协议消息
type Sender interface {
	Send(msg protocol.Message)
}

// Session 每连接的服务端会话。身份以连接为单位,
// 两个会话永远不会被合并。
type Session struct {
	// Name 认证后的登录名,未认证时为空
	Name string

	// Authed 是否已通过认证
	Authed bool

	// PendingDisconnect 标记后事件循环在缓冲清空时关闭连接
	PendingDisconnect bool

	sender Sender
}

// NewSession 创建会话
func NewSession(sender Sender) *Session {
	return &Session{sender: sender}
}

// Send 向会话所在连接发送消息
func (s *Session) Send(msg protocol.Message) {
	s.sender.Send(msg)
}

// MarkDisconnect 请求断开连接,出站缓冲仍会被送完
func (s *Session) MarkDisconnect() {
	s.PendingDisconnect = true
}
