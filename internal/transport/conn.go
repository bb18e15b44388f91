// Package transport 实现单个 TCP 连接的读写泵。
// 每个连接一个读 goroutine 和一个写 goroutine:读侧把原始字节
// 按到达顺序投递到共享事件通道,写侧独占 SendBuffer 并把它
// 清空到套接字。会话状态的所有修改都发生在消费事件通道的
// 事件循环 goroutine 上。
package transport

import (
	"errors"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/qiminjie89/gochat/pkg/logger"
	"go.uber.org/zap"
)

// ErrZeroWrite 非空缓冲写入 0 字节,视为致命写错误而非重试条件
var ErrZeroWrite = errors.New("zero-length write on non-empty buffer")

// Event 连接事件。Data 与 Err 互斥:Data 为读到的字节,
// Err 非空表示连接结束(io.EOF 为对端正常关闭)。
type Event struct {
	Conn *Conn
	Data []byte
	Err  error
}

// Conn 一条客户端连接
type Conn struct {
	id     string
	sock   net.Conn
	events chan<- Event

	sendCh chan []byte
	buf    SendBuffer

	// closed 只被事件循环 goroutine 读写
	closed bool

	abortOnce sync.Once
	done      chan struct{}

	readBufSize int
}

// NewConn 包装一条已建立的连接。queueSize 为发送队列长度,
// readBufSize 为单次读取的缓冲大小。
func NewConn(sock net.Conn, events chan<- Event, queueSize, readBufSize int) *Conn {
	if queueSize <= 0 {
		queueSize = 64
	}
	if readBufSize <= 0 {
		readBufSize = 4096
	}
	return &Conn{
		id:          uuid.New().String(),
		sock:        sock,
		events:      events,
		sendCh:      make(chan []byte, queueSize),
		done:        make(chan struct{}),
		readBufSize: readBufSize,
	}
}

// ID 连接标识
func (c *Conn) ID() string {
	return c.id
}

// RemoteAddr 对端地址
func (c *Conn) RemoteAddr() string {
	return c.sock.RemoteAddr().String()
}

// Start 启动读写循环
func (c *Conn) Start() {
	go c.readLoop()
	go c.writeLoop()
}

// Enqueue 把已编码的帧排入发送队列。只能由事件循环调用;
// 队列满时阻塞事件循环,单个慢连接拖慢全局是已接受的取舍。
func (c *Conn) Enqueue(frame []byte) {
	if c.closed {
		return
	}
	c.sendCh <- frame
}

// CloseGraceful 优雅关闭:不再接受新输出,写 goroutine 清空
// 发送缓冲后关闭套接字。只能由事件循环调用。
func (c *Conn) CloseGraceful() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.sendCh)
}

// Abort 立即关闭,不等待缓冲清空。只能由事件循环调用。
func (c *Conn) Abort() {
	if !c.closed {
		c.closed = true
		close(c.sendCh)
	}
	c.abortOnce.Do(func() {
		c.sock.Close()
	})
}

// Done 写 goroutine 退出(缓冲已清空或连接已失败)后关闭
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) readLoop() {
	buf := make([]byte, c.readBufSize)
	for {
		n, err := c.sock.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			c.events <- Event{Conn: c, Data: data}
		}
		if err != nil {
			c.events <- Event{Conn: c, Err: err}
			return
		}
	}
}

func (c *Conn) writeLoop() {
	defer close(c.done)

	for data := range c.sendCh {
		c.buf.Append(data)
		if !c.flush() {
			c.abortOnce.Do(func() { c.sock.Close() })
			return
		}
	}

	// 发送队列已关闭:清空剩余缓冲后再关闭套接字
	c.flush()
	c.abortOnce.Do(func() { c.sock.Close() })
}

// flush 把发送缓冲尽量写入套接字,返回连接是否仍然可用
func (c *Conn) flush() bool {
	for c.buf.Len() > 0 {
		n, err := c.sock.Write(c.buf.Data())
		if err != nil {
			logger.Debug("connection write error",
				zap.String("conn_id", c.id),
				zap.Error(err),
			)
			return false
		}
		if n == 0 {
			logger.Warn("write fault",
				zap.String("conn_id", c.id),
				zap.Error(ErrZeroWrite),
			)
			return false
		}
		if err := c.buf.BytesSent(n); err != nil {
			logger.Error("send buffer accounting error",
				zap.String("conn_id", c.id),
				zap.Error(err),
			)
			return false
		}
	}
	return true
}
