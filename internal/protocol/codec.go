package protocol

import (
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"
)

// wireUser 认证请求中的凭据对象
type wireUser struct {
	AccountName string `json:"account_name"`
	Password    string `json:"password"`
}

// envelope 入站消息的通用信封,按判别字段分发
type envelope struct {
	Action   string          `json:"action"`
	Response *int            `json:"response"`
	Message  string          `json:"message"`
	To       string          `json:"to"`
	From     string          `json:"from"`
	Room     string          `json:"room"`
	Status   string          `json:"status"`
	User     json.RawMessage `json:"user"`
}

// Encoder 把类型化消息编码为帧。Now 可注入,便于测试固定时间戳。
type Encoder struct {
	Now func() time.Time
}

// NewEncoder 创建编码器
func NewEncoder() *Encoder {
	return &Encoder{Now: time.Now}
}

// Encode 编码消息并加帧头
func (e *Encoder) Encode(msg Message) ([]byte, error) {
	payload, err := e.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return EncodeFrame(payload)
}

// Marshal 把消息编码为 JSON 信封。除 Quit 外所有消息
// 都携带 time 字段(Unix 秒,浮点)。
// 字段含非法 UTF-8 时编码失败,不允许有损替换后上线。
func (e *Encoder) Marshal(msg Message) ([]byte, error) {
	for _, s := range messageStrings(msg) {
		if !utf8.ValidString(s) {
			return nil, fmt.Errorf("%w: payload is not valid UTF-8", ErrEncode)
		}
	}

	ts := float64(e.Now().UnixNano()) / float64(time.Second)

	var v any
	switch m := msg.(type) {
	case Authenticate:
		v = struct {
			Action string   `json:"action"`
			Time   float64  `json:"time"`
			User   wireUser `json:"user"`
		}{"authenticate", ts, wireUser{m.Login, m.Password}}
	case Quit:
		v = struct {
			Action string `json:"action"`
		}{"quit"}
	case Presence:
		v = struct {
			Action string  `json:"action"`
			Time   float64 `json:"time"`
			Status string  `json:"status,omitempty"`
		}{"presence", ts, string(m.Status)}
	case Chat:
		v = struct {
			Action  string  `json:"action"`
			Time    float64 `json:"time"`
			To      string  `json:"to"`
			Message string  `json:"message"`
		}{"msg", ts, m.To, m.Message}
	case Join:
		v = struct {
			Action string  `json:"action"`
			Time   float64 `json:"time"`
			Room   string  `json:"room"`
		}{"join", ts, m.Room}
	case Leave:
		v = struct {
			Action string  `json:"action"`
			Time   float64 `json:"time"`
			Room   string  `json:"room"`
		}{"leave", ts, m.Room}
	case AddContact:
		v = struct {
			Action string  `json:"action"`
			Time   float64 `json:"time"`
			User   string  `json:"user"`
		}{"add_contact", ts, m.User}
	case RemoveContact:
		v = struct {
			Action string  `json:"action"`
			Time   float64 `json:"time"`
			User   string  `json:"user"`
		}{"del_contact", ts, m.User}
	case GetContacts:
		v = struct {
			Action string  `json:"action"`
			Time   float64 `json:"time"`
		}{"get_contacts", ts}
	case Response:
		v = struct {
			Response int     `json:"response"`
			Time     float64 `json:"time"`
			Message  string  `json:"message"`
		}{m.Code, ts, m.Message}
	case Probe:
		v = struct {
			Action string  `json:"action"`
			Time   float64 `json:"time"`
		}{"probe", ts}
	case ChatToClient:
		v = struct {
			Action  string  `json:"action"`
			Time    float64 `json:"time"`
			From    string  `json:"from"`
			Message string  `json:"message"`
			Room    string  `json:"room,omitempty"`
		}{"msg", ts, m.Sender, m.Message, m.Room}
	default:
		return nil, fmt.Errorf("%w: unsupported message %T", ErrEncode, msg)
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return payload, nil
}

// DecodeClientMessage 解码客户端 → 服务端消息
func DecodeClientMessage(payload []byte) (ClientMessage, error) {
	env, err := parseEnvelope(payload)
	if err != nil {
		return nil, err
	}

	switch env.Action {
	case "authenticate":
		var u wireUser
		if err := json.Unmarshal(env.User, &u); err != nil {
			return nil, fmt.Errorf("%w: bad user object: %v", ErrDecode, err)
		}
		return Authenticate{Login: u.AccountName, Password: u.Password}, nil
	case "quit":
		return Quit{}, nil
	case "presence":
		return Presence{Status: Status(env.Status)}, nil
	case "msg":
		return Chat{To: env.To, Message: env.Message}, nil
	case "join":
		return Join{Room: env.Room}, nil
	case "leave":
		return Leave{Room: env.Room}, nil
	case "add_contact":
		user, err := contactUser(env.User)
		if err != nil {
			return nil, err
		}
		return AddContact{User: user}, nil
	case "del_contact":
		user, err := contactUser(env.User)
		if err != nil {
			return nil, err
		}
		return RemoveContact{User: user}, nil
	case "get_contacts":
		return GetContacts{}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported action %q", ErrDecode, env.Action)
	}
}

// DecodeServerMessage 解码服务端 → 客户端消息
func DecodeServerMessage(payload []byte) (ServerMessage, error) {
	env, err := parseEnvelope(payload)
	if err != nil {
		return nil, err
	}

	switch {
	case env.Action == "probe":
		return Probe{}, nil
	case env.Action == "msg":
		return ChatToClient{Sender: env.From, Message: env.Message, Room: env.Room}, nil
	case env.Action == "" && env.Response != nil:
		return Response{Code: *env.Response, Message: env.Message}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported action %q", ErrDecode, env.Action)
	}
}

func parseEnvelope(payload []byte) (*envelope, error) {
	if !utf8.Valid(payload) {
		return nil, fmt.Errorf("%w: payload is not valid UTF-8", ErrDecode)
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return &env, nil
}

// messageStrings 返回消息里会上线的全部字符串字段
func messageStrings(msg Message) []string {
	switch m := msg.(type) {
	case Authenticate:
		return []string{m.Login, m.Password}
	case Presence:
		return []string{string(m.Status)}
	case Chat:
		return []string{m.To, m.Message}
	case Join:
		return []string{m.Room}
	case Leave:
		return []string{m.Room}
	case AddContact:
		return []string{m.User}
	case RemoveContact:
		return []string{m.User}
	case Response:
		return []string{m.Message}
	case ChatToClient:
		return []string{m.Sender, m.Message, m.Room}
	default:
		return nil
	}
}

func contactUser(raw json.RawMessage) (string, error) {
	var user string
	if err := json.Unmarshal(raw, &user); err != nil {
		return "", fmt.Errorf("%w: bad user field: %v", ErrDecode, err)
	}
	return user, nil
}
