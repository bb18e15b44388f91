// Package store 基于 SQLite 的用户凭据与联系人存储。
// 核心协议层只通过 server.Authenticator / server.ContactStore
// 接口消费它,认证决策之外不会触达这里。
package store

import (
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/qiminjie89/gochat/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrUserExists 注册时用户名已存在
	ErrUserExists = errors.New("user already exists")

	// ErrUserNotFound 按名字查找不到用户
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidName 用户名必须是字母数字且长度 >= 4
	ErrInvalidName = errors.New("invalid username")

	// ErrInvalidPassword 密码复杂度不足
	ErrInvalidPassword = errors.New("invalid password")

	// ErrSelfContact 不能把自己加入联系人
	ErrSelfContact = errors.New("can't add self to contacts")
)

var usernameRe = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// 密码必须包含的符号集合
const passwordSymbols = " !\"#$%&'()*+,-./[\\]^_`{|}~"

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	username VARCHAR NOT NULL UNIQUE,
	password VARCHAR NOT NULL
);
CREATE TABLE IF NOT EXISTS contacts (
	owner_id   INTEGER NOT NULL REFERENCES users(id),
	contact_id INTEGER NOT NULL REFERENCES users(id),
	PRIMARY KEY (owner_id, contact_id)
);
CREATE TABLE IF NOT EXISTS user_history (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL REFERENCES users(id),
	event   VARCHAR NOT NULL,
	at      TIMESTAMP NOT NULL
);
`

// 用户历史事件类型
const (
	EventRegister = "register"
	EventLogin    = "login"
	EventLogout   = "logout"
)

// HistoryEntry 一条用户历史记录
type HistoryEntry struct {
	Event string
	At    time.Time
}

// User 一条用户记录,密码散列不外露
type User struct {
	ID   int64
	Name string
}

// Store SQLite 存储
type Store struct {
	db *sql.DB
}

// Open 打开(必要时创建)数据库
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close 关闭数据库
func (s *Store) Close() error {
	return s.db.Close()
}

// RegisterUser 注册新用户,密码以 bcrypt 散列存储
func (s *Store) RegisterUser(name, password string) error {
	if err := checkUsername(name); err != nil {
		return err
	}
	if err := checkPasswordComplexity(password); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`INSERT INTO users (username, password) VALUES (?, ?)`, name, string(hash))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrUserExists
		}
		return err
	}

	logger.Debug("user registered", zap.String("username", name))
	return s.recordEvent(name, EventRegister)
}

// RecordLogin 记录一次成功登录
func (s *Store) RecordLogin(name string) error {
	return s.recordEvent(name, EventLogin)
}

// RecordLogout 记录一次登出(显式退出或断连)
func (s *Store) RecordLogout(name string) error {
	return s.recordEvent(name, EventLogout)
}

func (s *Store) recordEvent(name, event string) error {
	u, err := s.GetUserByName(name)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO user_history (user_id, event, at) VALUES (?, ?, ?)`,
		u.ID, event, time.Now().UTC(),
	)
	return err
}

// History 按时间顺序返回用户的历史记录
func (s *Store) History(name string) ([]HistoryEntry, error) {
	u, err := s.GetUserByName(name)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(
		`SELECT event, at FROM user_history WHERE user_id = ? ORDER BY id`, u.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.Event, &e.At); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// CredentialsValid 校验登录凭据;用户不存在视为凭据无效,不报错
func (s *Store) CredentialsValid(name, password string) (bool, error) {
	var hash string
	err := s.db.QueryRow(`SELECT password FROM users WHERE username = ?`, name).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil, nil
}

// GetUserByName 按名字查找用户
func (s *Store) GetUserByName(name string) (*User, error) {
	var u User
	err := s.db.QueryRow(`SELECT id, username FROM users WHERE username = ?`, name).Scan(&u.ID, &u.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// AddContact 把 contact 加入 owner 的联系人,重复添加为空操作
func (s *Store) AddContact(owner, contact string) error {
	if owner == contact {
		return ErrSelfContact
	}

	ownerUser, err := s.GetUserByName(owner)
	if err != nil {
		return err
	}
	contactUser, err := s.GetUserByName(contact)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(
		`INSERT OR IGNORE INTO contacts (owner_id, contact_id) VALUES (?, ?)`,
		ownerUser.ID, contactUser.ID,
	)
	if err != nil {
		return err
	}

	logger.Debug("contact added",
		zap.String("owner", owner),
		zap.String("contact", contact),
	)
	return nil
}

// RemoveContact 把 contact 移出 owner 的联系人,不在列表时为空操作
func (s *Store) RemoveContact(owner, contact string) error {
	ownerUser, err := s.GetUserByName(owner)
	if err != nil {
		return err
	}
	contactUser, err := s.GetUserByName(contact)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(
		`DELETE FROM contacts WHERE owner_id = ? AND contact_id = ?`,
		ownerUser.ID, contactUser.ID,
	)
	if err != nil {
		return err
	}

	logger.Debug("contact removed",
		zap.String("owner", owner),
		zap.String("contact", contact),
	)
	return nil
}

// Contacts 返回 owner 的联系人名单
func (s *Store) Contacts(owner string) ([]string, error) {
	ownerUser, err := s.GetUserByName(owner)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`
		SELECT u.username FROM contacts c
		JOIN users u ON u.id = c.contact_id
		WHERE c.owner_id = ?
		ORDER BY u.username`, ownerUser.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		result = append(result, name)
	}
	return result, rows.Err()
}

func checkUsername(name string) error {
	if len(name) < 4 {
		return ErrInvalidName
	}
	if !usernameRe.MatchString(name) {
		return ErrInvalidName
	}
	return nil
}

func checkPasswordComplexity(password string) error {
	if len(password) < 8 {
		return ErrInvalidPassword
	}
	var hasDigit, hasUpper, hasLower, hasSymbol bool
	for _, c := range password {
		switch {
		case c >= '0' && c <= '9':
			hasDigit = true
		case c >= 'A' && c <= 'Z':
			hasUpper = true
		case c >= 'a' && c <= 'z':
			hasLower = true
		case strings.ContainsRune(passwordSymbols, c):
			hasSymbol = true
		}
	}
	if !hasDigit || !hasUpper || !hasLower || !hasSymbol {
		return ErrInvalidPassword
	}
	return nil
}
