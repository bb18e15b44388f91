package protocol

import "regexp"

// 房间名必须以 # 开头,仅含 ASCII 字母数字、下划线、连字符和 @
var roomNameRe = regexp.MustCompile(`^#[\w@-]+$`)

// ValidRoomName 校验房间名语法,不触发任何网络交互
func ValidRoomName(name string) bool {
	return roomNameRe.MatchString(name)
}
