package protocol

import (
	"encoding/binary"
	"math"
)

/*
线上帧格式:
+----------+------------------+
|  Length  |     Payload      |
|  4 bytes |  变长 (UTF-8 JSON) |
+----------+------------------+
Length 为大端序无符号整数,表示 Payload 的字节数,必须大于 0。
*/

const (
	// HeaderSize 帧头长度
	HeaderSize = 4

	// MaxPayloadLen 单帧负载上限
	MaxPayloadLen = math.MaxUint32
)

// EncodeFrame 为负载加上 4 字节大端序长度头
func EncodeFrame(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, ErrZeroSizeFrame
	}
	if uint64(len(payload)) > MaxPayloadLen {
		return nil, ErrMessageTooBig
	}

	buf := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf[0:HeaderSize], uint32(len(payload)))
	copy(buf[HeaderSize:], payload)
	return buf, nil
}

// Splitter 把任意切分的字节流重组为完整帧,每个连接独占一个实例
type Splitter struct {
	data []byte
}

// NewSplitter 创建分帧器
func NewSplitter() *Splitter {
	return &Splitter{}
}

// Feed 追加收到的字节并提取所有已完整的负载。
// 帧头声明长度为 0 时返回 ErrZeroSizeFrame,此后分帧器不可继续使用。
func (s *Splitter) Feed(p []byte) ([][]byte, error) {
	s.data = append(s.data, p...)

	var frames [][]byte
	for {
		if len(s.data) < HeaderSize {
			return frames, nil
		}

		size := binary.BigEndian.Uint32(s.data[0:HeaderSize])
		if size == 0 {
			return frames, ErrZeroSizeFrame
		}
		if uint64(len(s.data)-HeaderSize) < uint64(size) {
			return frames, nil
		}

		payload := make([]byte, size)
		copy(payload, s.data[HeaderSize:HeaderSize+int(size)])
		frames = append(frames, payload)
		s.data = s.data[HeaderSize+int(size):]
	}
}

// Buffered 返回尚未组成完整帧的字节数
func (s *Splitter) Buffered() int {
	return len(s.data)
}
