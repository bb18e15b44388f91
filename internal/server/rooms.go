package server

import (
	"fmt"

	"github.com/qiminjie89/gochat/internal/protocol"
	"github.com/qiminjie89/gochat/pkg/logger"
	"github.com/qiminjie89/gochat/pkg/metrics"
	"go.uber.org/zap"
)

// RoomManager 管理房间生命周期与群聊扇出。
// 房间首次加入时惰性创建,最后一个成员离开时销毁;
// 只在事件循环 goroutine 上访问,无锁。
type RoomManager struct {
	rooms map[string]map[*Session]struct{}
}

// NewRoomManager 创建房间管理器
func NewRoomManager() *RoomManager {
	return &RoomManager{
		rooms: make(map[string]map[*Session]struct{}),
	}
}

// Join 把会话加入房间,房间不存在时创建。
// 房间名不合语法返回 ErrInvalidRoomName。
func (m *RoomManager) Join(room string, sess *Session) error {
	if !protocol.ValidRoomName(room) {
		return fmt.Errorf("%w: %q", protocol.ErrInvalidRoomName, room)
	}

	members, ok := m.rooms[room]
	if !ok {
		members = make(map[*Session]struct{})
		m.rooms[room] = members
		metrics.Rooms.Inc()
		logger.Debug("room created", zap.String("room", room))
	}

	members[sess] = struct{}{}
	logger.Info("user joins room",
		zap.String("room", room),
		zap.String("client", sess.Name),
	)
	return nil
}

// Leave 把会话移出房间,成员清空时销毁房间。
// 房间名不合语法返回 ErrInvalidRoomName,房间不存在时为空操作。
func (m *RoomManager) Leave(room string, sess *Session) error {
	if !protocol.ValidRoomName(room) {
		return fmt.Errorf("%w: %q", protocol.ErrInvalidRoomName, room)
	}

	logger.Info("user leaves room",
		zap.String("room", room),
		zap.String("client", sess.Name),
	)
	m.leave(room, sess)
	return nil
}

// LeaveAll 把会话移出它所在的全部房间,断连清理路径。
// 不输出逐房间的离开日志,与显式 leave 在观测上区分。
func (m *RoomManager) LeaveAll(sess *Session) {
	for room := range m.rooms {
		m.leave(room, sess)
	}
}

func (m *RoomManager) leave(room string, sess *Session) {
	members, ok := m.rooms[room]
	if !ok {
		return
	}
	if _, in := members[sess]; !in {
		return
	}

	delete(members, sess)
	if len(members) == 0 {
		delete(m.rooms, room)
		metrics.Rooms.Dec()
		logger.Info("remove empty room", zap.String("room", room))
	}
}

// SendMessage 把群聊消息扇出给房间内除发送者外的全部成员,
// 出站消息带上房间名。房间不存在时静默丢弃。
func (m *RoomManager) SendMessage(msg protocol.Chat, from *Session) {
	members, ok := m.rooms[msg.To]
	if !ok {
		return
	}

	logger.Info("user sends room message",
		zap.String("room", msg.To),
		zap.String("from", from.Name),
	)
	for sess := range members {
		if sess == from {
			continue
		}
		sess.Send(protocol.ChatToClient{
			Sender:  from.Name,
			Message: msg.Message,
			Room:    msg.To,
		})
	}
}

// Exists 房间是否存在
func (m *RoomManager) Exists(room string) bool {
	_, ok := m.rooms[room]
	return ok
}

// MemberCount 返回房间成员数,房间不存在时为 0
func (m *RoomManager) MemberCount(room string) int {
	return len(m.rooms[room])
}

// Len 返回活跃房间数
func (m *RoomManager) Len() int {
	return len(m.rooms)
}
