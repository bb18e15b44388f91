package client

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/qiminjie89/gochat/internal/executor"
	"github.com/qiminjie89/gochat/internal/protocol"
	"github.com/qiminjie89/gochat/internal/transport"
	"github.com/qiminjie89/gochat/pkg/config"
	"github.com/qiminjie89/gochat/pkg/logger"
	"go.uber.org/zap"
)

const drainTimeout = 3 * time.Second

// EventLoop 客户端事件循环:拥有连接与状态机,串行处理网络事件
// 和通过任务队列投递的用户命令。
type EventLoop struct {
	cfg      *config.ClientConfig
	exec     *executor.Executor
	enc      *protocol.Encoder
	client   *Client
	conn     *transport.Conn
	events   chan transport.Event
	splitter *protocol.Splitter
	stopping bool
}

// NewEventLoop 创建客户端事件循环
func NewEventLoop(cfg *config.ClientConfig, exec *executor.Executor, onChat ChatHandler) *EventLoop {
	l := &EventLoop{
		cfg:    cfg,
		exec:   exec,
		enc:    protocol.NewEncoder(),
		events: make(chan transport.Event, cfg.Connection.EventQueueSize),
	}
	l.client = NewClient(&loopSender{loop: l}, l.requestStop, onChat)
	return l
}

// Client 返回状态机,它的方法只能通过任务队列调度执行
func (l *EventLoop) Client() *Client {
	return l.client
}

// Dial 建立到服务端的连接
func (l *EventLoop) Dial() error {
	sock, err := net.Dial("tcp", l.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", l.cfg.Server.Addr, err)
	}
	l.conn = transport.NewConn(sock, l.events, l.cfg.Connection.SendQueueSize, l.cfg.Connection.ReadBufferSize)
	l.splitter = protocol.NewSplitter()
	logger.Info("connected", zap.String("addr", l.cfg.Server.Addr))
	return nil
}

// Run 运行事件循环直到连接关闭或 ctx 取消
func (l *EventLoop) Run(ctx context.Context) error {
	if l.conn == nil {
		if err := l.Dial(); err != nil {
			return err
		}
	}
	l.conn.Start()

	for {
		select {
		case <-ctx.Done():
			l.shutdown()
			return ctx.Err()
		case ev := <-l.events:
			done, err := l.handleEvent(ev)
			if done {
				return err
			}
		case <-l.exec.Ready():
		}
		l.exec.Drain()
	}
}

// handleEvent 处理一条连接事件,返回循环是否结束
func (l *EventLoop) handleEvent(ev transport.Event) (bool, error) {
	if ev.Err != nil {
		switch {
		case l.stopping:
			logger.Info("connection closed")
			return true, nil
		case ev.Err == io.EOF:
			logger.Info("server closed connection")
			l.conn.Abort()
			return true, nil
		default:
			logger.Error("read error", zap.Error(ev.Err))
			l.conn.Abort()
			return true, ev.Err
		}
	}
	if l.stopping {
		return false, nil
	}

	frames, splitErr := l.splitter.Feed(ev.Data)
	for _, frame := range frames {
		msg, err := protocol.DecodeServerMessage(frame)
		if err != nil {
			logger.Error("bad message from server", zap.Error(err))
			l.conn.Abort()
			return true, err
		}
		l.client.Route(msg)
		if l.stopping {
			break
		}
	}
	if splitErr != nil {
		logger.Error("framing error", zap.Error(splitErr))
		l.conn.Abort()
		return true, splitErr
	}
	return false, nil
}

// requestStop 标记会话结束。发送队列中已入队的消息(如 quit)
// 仍会在优雅关闭时刷出。
func (l *EventLoop) requestStop() {
	if l.stopping {
		return
	}
	l.stopping = true
	l.conn.CloseGraceful()
}

func (l *EventLoop) shutdown() {
	if l.conn == nil {
		return
	}
	if !l.stopping {
		l.stopping = true
		l.conn.CloseGraceful()
	}
	select {
	case <-l.conn.Done():
	case <-time.After(drainTimeout):
		l.conn.Abort()
	}
}

// loopSender 将状态机产出的消息编码后入队发送
type loopSender struct {
	loop *EventLoop
}

func (s *loopSender) Send(msg protocol.Message) {
	frame, err := s.loop.enc.Encode(msg)
	if err != nil {
		logger.Error("encode message", zap.Error(err))
		return
	}
	s.loop.conn.Enqueue(frame)
}
