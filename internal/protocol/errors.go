package protocol

import "errors"

var (
	// ErrMessageTooBig 负载长度超出 4 字节头可表示的范围
	ErrMessageTooBig = errors.New("message too big")

	// ErrZeroSizeFrame 帧头声明长度为 0,协议违例,连接必须关闭
	ErrZeroSizeFrame = errors.New("frame size is 0")

	// ErrEncode 消息无法编码为合法的 UTF-8 JSON
	ErrEncode = errors.New("message encoding failed")

	// ErrDecode 负载不是合法的 UTF-8 JSON,或消息判别字段未知
	ErrDecode = errors.New("message decoding failed")

	// ErrInvalidRoomName 房间名不符合语法 ^#[A-Za-z0-9_@-]+$
	ErrInvalidRoomName = errors.New("invalid room name")
)
