package server

import (
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/qiminjie89/gochat/internal/executor"
	"github.com/qiminjie89/gochat/internal/protocol"
	"github.com/qiminjie89/gochat/internal/transport"
	"github.com/qiminjie89/gochat/pkg/config"
	"github.com/qiminjie89/gochat/pkg/logger"
	"github.com/qiminjie89/gochat/pkg/metrics"
	"go.uber.org/zap"
)

// 关闭时给每条连接清空发送缓冲的宽限
const drainTimeout = 3 * time.Second

// connState 事件循环为每条连接维护的状态
type connState struct {
	conn     *transport.Conn
	sess     *Session
	splitter *protocol.Splitter

	// closing 已发起优雅关闭,读到的剩余输入一律忽略
	closing bool
}

// EventLoop 单 goroutine 的网络事件循环,独占全部连接、
// 会话、房间与注册表状态。其他 goroutine(接受连接的、
// 每连接的读写泵、探测定时器)只通过通道和任务队列与它交互。
type EventLoop struct {
	cfg  *config.ServerConfig
	srv  *Server
	exec *executor.Executor
	enc  *protocol.Encoder

	ln       net.Listener
	acceptCh chan net.Conn
	events   chan transport.Event
	conns    map[*transport.Conn]*connState

	// connCount 供监控端点跨 goroutine 读取
	connCount atomic.Int64
}

// ConnCount 当前打开的连接数,可在任意 goroutine 上读取
func (l *EventLoop) ConnCount() int64 {
	return l.connCount.Load()
}

// NewEventLoop 创建事件循环
func NewEventLoop(cfg *config.ServerConfig, srv *Server, exec *executor.Executor) *EventLoop {
	return &EventLoop{
		cfg:      cfg,
		srv:      srv,
		exec:     exec,
		enc:      protocol.NewEncoder(),
		acceptCh: make(chan net.Conn),
		events:   make(chan transport.Event, cfg.Connection.EventQueueSize),
		conns:    make(map[*transport.Conn]*connState),
	}
}

// Listen 打开监听套接字
func (l *EventLoop) Listen() error {
	ln, err := net.Listen("tcp", l.cfg.Server.Addr)
	if err != nil {
		return err
	}
	l.ln = ln
	logger.Info("server listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr 返回实际监听地址,Listen 之后有效
func (l *EventLoop) Addr() string {
	return l.ln.Addr().String()
}

// Run 运行事件循环直到 ctx 取消。每轮处理一个网络事件,
// 然后清空任务队列并回收已标记断开且缓冲送完的连接。
func (l *EventLoop) Run(ctx context.Context) error {
	if l.ln == nil {
		if err := l.Listen(); err != nil {
			return err
		}
	}

	go l.acceptLoop(ctx)
	go l.probeLoop(ctx)

	for {
		select {
		case <-ctx.Done():
			l.shutdown()
			return nil
		case sock := <-l.acceptCh:
			l.addConn(sock)
		case ev := <-l.events:
			l.handleEvent(ev)
		case <-l.exec.Ready():
		}

		l.exec.Drain()
		l.sweepDisconnects()
	}
}

func (l *EventLoop) acceptLoop(ctx context.Context) {
	for {
		sock, err := l.ln.Accept()
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
				logger.Error("accept failed", zap.Error(err))
			}
			return
		}

		select {
		case l.acceptCh <- sock:
		case <-ctx.Done():
			sock.Close()
			return
		}
	}
}

// probeLoop 定时把探测广播调度到事件循环上,
// 自己从不直接触碰会话状态。
func (l *EventLoop) probeLoop(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.Probe.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.exec.Schedule(l.srv.SendProbes)
		}
	}
}

func (l *EventLoop) addConn(sock net.Conn) {
	conn := transport.NewConn(sock, l.events, l.cfg.Connection.SendQueueSize, l.cfg.Connection.ReadBufferSize)
	sess := NewSession(&connSender{conn: conn, enc: l.enc})

	l.conns[conn] = &connState{
		conn:     conn,
		sess:     sess,
		splitter: protocol.NewSplitter(),
	}

	l.connCount.Add(1)
	metrics.Connections.Inc()
	logger.Debug("new connection",
		zap.String("conn_id", conn.ID()),
		zap.String("remote_addr", conn.RemoteAddr()),
	)

	l.srv.OnClientConnected(sess)
	conn.Start()
}

func (l *EventLoop) handleEvent(ev transport.Event) {
	st, ok := l.conns[ev.Conn]
	if !ok {
		// 连接已清理,丢弃残余事件
		return
	}

	if ev.Err != nil {
		reason := "read_error"
		switch {
		case st.closing:
			reason = "graceful"
		case errors.Is(ev.Err, io.EOF):
			reason = "peer_closed"
		}
		l.dropConn(st, reason)
		return
	}

	if st.closing || st.sess.PendingDisconnect {
		// 已请求断开,不再消费输入
		return
	}

	frames, splitErr := st.splitter.Feed(ev.Data)
	for _, frame := range frames {
		msg, err := protocol.DecodeClientMessage(frame)
		if err != nil {
			metrics.ProtocolErrors.Inc()
			logger.Warn("undecodable message",
				zap.String("conn_id", st.conn.ID()),
				zap.Error(err),
			)
			l.dropConn(st, "protocol_error")
			return
		}

		metrics.MessagesReceived.WithLabelValues(actionName(msg)).Inc()
		if err := l.srv.Route(st.sess, msg); err != nil {
			metrics.ProtocolErrors.Inc()
			logger.Warn("protocol error",
				zap.String("conn_id", st.conn.ID()),
				zap.Error(err),
			)
			l.dropConn(st, "protocol_error")
			return
		}

		if st.sess.PendingDisconnect {
			// quit 之后的帧不再处理
			break
		}
	}

	if splitErr != nil {
		metrics.ProtocolErrors.Inc()
		logger.Warn("invalid frame",
			zap.String("conn_id", st.conn.ID()),
			zap.Error(splitErr),
		)
		l.dropConn(st, "protocol_error")
	}
}

// dropConn 立即关闭连接并做一次性清理。
// 无论断开由对端、quit 还是读写故障引起,清理只发生一次:
// 连接从表中移除后,后续事件在 handleEvent 入口被丢弃。
func (l *EventLoop) dropConn(st *connState, reason string) {
	st.conn.Abort()
	delete(l.conns, st.conn)

	l.srv.OnClientDisconnected(st.sess)

	l.connCount.Add(-1)
	metrics.Connections.Dec()
	metrics.Disconnects.WithLabelValues(reason).Inc()
	logger.Debug("connection closed",
		zap.String("conn_id", st.conn.ID()),
		zap.String("client", st.sess.Name),
		zap.String("reason", reason),
	)
}

// sweepDisconnects 对标记了断开的连接发起优雅关闭:
// 写 goroutine 送完缓冲并关闭套接字,读侧随后以事件收尾。
func (l *EventLoop) sweepDisconnects() {
	for _, st := range l.conns {
		if st.sess.PendingDisconnect && !st.closing {
			st.closing = true
			st.conn.CloseGraceful()
		}
	}
}

// shutdown 停止接受新连接,尽力送完全部发送缓冲后退出
func (l *EventLoop) shutdown() {
	logger.Info("stopping server")
	l.ln.Close()

	for _, st := range l.conns {
		st.closing = true
		st.conn.CloseGraceful()
	}

	deadline := time.After(drainTimeout)
	for _, st := range l.conns {
		select {
		case <-st.conn.Done():
		case <-deadline:
			st.conn.Abort()
		}
		l.srv.OnClientDisconnected(st.sess)
		l.connCount.Add(-1)
		metrics.Connections.Dec()
	}
	l.conns = make(map[*transport.Conn]*connState)
	logger.Info("server stopped")
}

// connSender 把协议消息编码、加帧并排入连接的发送队列
type connSender struct {
	conn *transport.Conn
	enc  *protocol.Encoder
}

func (s *connSender) Send(msg protocol.Message) {
	frame, err := s.enc.Encode(msg)
	if err != nil {
		logger.Warn("encode message failed", zap.Error(err))
		return
	}
	s.conn.Enqueue(frame)
	metrics.MessagesSent.Inc()
}

// actionName 返回消息的指标标签
func actionName(msg protocol.ClientMessage) string {
	switch msg.(type) {
	case protocol.Authenticate:
		return "authenticate"
	case protocol.Quit:
		return "quit"
	case protocol.Presence:
		return "presence"
	case protocol.Chat:
		return "msg"
	case protocol.Join:
		return "join"
	case protocol.Leave:
		return "leave"
	case protocol.AddContact:
		return "add_contact"
	case protocol.RemoveContact:
		return "del_contact"
	case protocol.GetContacts:
		return "get_contacts"
	default:
		return "unknown"
	}
}
