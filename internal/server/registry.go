package server

// Registry 已认证会话注册表,按登录名索引。
// 不变式:同一名字最多对应一个已认证会话;
// 只在事件循环 goroutine 上访问,无锁。
type Registry struct {
	sessions map[string]*Session
}

// NewRegistry 创建注册表
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// Add 注册会话,返回被同名新会话顶替的旧会话(如有)
func (r *Registry) Add(sess *Session) *Session {
	old := r.sessions[sess.Name]
	if old == sess {
		old = nil
	}
	r.sessions[sess.Name] = sess
	return old
}

// Remove 移除会话。仅当注册表里记录的正是这个会话时才移除,
// 被顶替的旧会话断开时不能误删新会话。
func (r *Registry) Remove(sess *Session) {
	if r.sessions[sess.Name] == sess {
		delete(r.sessions, sess.Name)
	}
}

// Find 按登录名查找会话
func (r *Registry) Find(name string) *Session {
	return r.sessions[name]
}

// All 返回全部已注册会话
func (r *Registry) All() []*Session {
	result := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		result = append(result, sess)
	}
	return result
}

// Len 返回已注册会话数
func (r *Registry) Len() int {
	return len(r.sessions)
}
