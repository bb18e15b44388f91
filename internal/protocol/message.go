// Package protocol 定义聊天协议的消息集合与线上格式
package protocol

// Status 在线状态,线上以小写字符串传输
type Status string

const (
	StatusOnline Status = "online"
	StatusAway   Status = "away"
)

// 响应状态码,语义沿用 HTTP
const (
	CodeOK           = 200
	CodeAccepted     = 202
	CodeBadRequest   = 400
	CodeUnauthorized = 401
)

// CodeText 状态码对应的默认描述
var CodeText = map[int]string{
	CodeOK:           "ok",
	CodeAccepted:     "accepted",
	CodeBadRequest:   "bad_request",
	CodeUnauthorized: "unauthorized",
}

// Message 协议消息的标记接口,消息集合封闭
type Message interface {
	isMessage()
}

// ClientMessage 客户端 → 服务端消息
type ClientMessage interface {
	Message
	isClientMessage()
}

// ServerMessage 服务端 → 客户端消息
type ServerMessage interface {
	Message
	isServerMessage()
}

// Authenticate 认证请求
type Authenticate struct {
	Login    string
	Password string
}

// Quit 客户端退出,唯一不携带 time 字段的消息
type Quit struct{}

// Presence 在线状态上报,Status 为空表示未携带
type Presence struct {
	Status Status
}

// Chat 客户端发出的聊天消息;To 匹配房间名语法时为群聊,否则为私聊
type Chat struct {
	To      string
	Message string
}

// Join 加入房间
type Join struct {
	Room string
}

// Leave 离开房间
type Leave struct {
	Room string
}

// AddContact 添加联系人
type AddContact struct {
	User string
}

// RemoveContact 删除联系人
type RemoveContact struct {
	User string
}

// GetContacts 拉取联系人列表
type GetContacts struct{}

// Response 服务端应答
type Response struct {
	Code    int
	Message string
}

// Probe 服务端发起的存活探测,客户端无需应答
type Probe struct{}

// ChatToClient 服务端推送的聊天消息;Room 为空表示私聊
type ChatToClient struct {
	Sender  string
	Message string
	Room    string
}

func (Authenticate) isMessage()  {}
func (Quit) isMessage()          {}
func (Presence) isMessage()      {}
func (Chat) isMessage()          {}
func (Join) isMessage()          {}
func (Leave) isMessage()         {}
func (AddContact) isMessage()    {}
func (RemoveContact) isMessage() {}
func (GetContacts) isMessage()   {}
func (Response) isMessage()      {}
func (Probe) isMessage()         {}
func (ChatToClient) isMessage()  {}

func (Authenticate) isClientMessage()  {}
func (Quit) isClientMessage()          {}
func (Presence) isClientMessage()      {}
func (Chat) isClientMessage()          {}
func (Join) isClientMessage()          {}
func (Leave) isClientMessage()         {}
func (AddContact) isClientMessage()    {}
func (RemoveContact) isClientMessage() {}
func (GetContacts) isClientMessage()   {}

func (Response) isServerMessage()     {}
func (Probe) isServerMessage()        {}
func (ChatToClient) isServerMessage() {}
