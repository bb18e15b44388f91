// Package config 提供配置加载功能
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig 聊天服务器配置
type ServerConfig struct {
	Server     ListenConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Probe      ProbeConfig      `yaml:"probe"`
	Connection ConnectionConfig `yaml:"connection"`
	Log        LogConfig        `yaml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ClientConfig 聊天客户端配置
type ClientConfig struct {
	Server     DialConfig       `yaml:"server"`
	Connection ConnectionConfig `yaml:"connection"`
	Log        LogConfig        `yaml:"log"`
}

// ListenConfig 监听配置
type ListenConfig struct {
	Addr        string `yaml:"addr"`
	MonitorAddr string `yaml:"monitor_addr"`
}

// DialConfig 服务器地址配置
type DialConfig struct {
	Addr string `yaml:"addr"`
}

// DatabaseConfig 用户/联系人存储配置,Path 为空时不启用凭据校验
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ProbeConfig 存活探测配置
type ProbeConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// ConnectionConfig 连接级缓冲配置
type ConnectionConfig struct {
	ReadBufferSize int `yaml:"read_buffer_size"`
	SendQueueSize  int `yaml:"send_queue_size"`
	EventQueueSize int `yaml:"event_queue_size"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MetricsConfig 监控配置
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LoadServerConfig 加载服务器配置
func LoadServerConfig(path string) (*ServerConfig, error) {
	var cfg ServerConfig
	if err := load(path, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// LoadClientConfig 加载客户端配置
func LoadClientConfig(path string) (*ClientConfig, error) {
	var cfg ClientConfig
	if err := load(path, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func load(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, out)
}

func (c *ServerConfig) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = "localhost:7777"
	}
	if c.Server.MonitorAddr == "" {
		c.Server.MonitorAddr = "localhost:9090"
	}
	if c.Probe.Interval <= 0 {
		c.Probe.Interval = 10 * time.Second
	}
	c.Connection.applyDefaults()
}

func (c *ClientConfig) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = "localhost:7777"
	}
	c.Connection.applyDefaults()
}

func (c *ConnectionConfig) applyDefaults() {
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = 4096
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = 64
	}
	if c.EventQueueSize <= 0 {
		c.EventQueueSize = 1024
	}
}
