package transport

import "fmt"

// SendBuffer 每个连接独占的待发送字节缓冲,只追加、按已发送字节数推进。
// 由写 goroutine 独占访问,不加锁。
type SendBuffer struct {
	data []byte
}

// Append 追加待发送字节
func (b *SendBuffer) Append(p []byte) {
	b.data = append(b.data, p...)
}

// Data 返回当前待发送的全部字节
func (b *SendBuffer) Data() []byte {
	return b.data
}

// Len 返回待发送字节数
func (b *SendBuffer) Len() int {
	return len(b.data)
}

// BytesSent 丢弃已被套接字接受的前 n 字节。
// n 超过缓冲长度说明调用方统计错误,属于编程错误而非网络输入可触发的状态。
func (b *SendBuffer) BytesSent(n int) error {
	if n > len(b.data) {
		return fmt.Errorf("sent more than buffered: sent=%d buffered=%d", n, len(b.data))
	}
	b.data = b.data[n:]
	return nil
}
