// Package main 提供交互式聊天客户端
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/qiminjie89/gochat/internal/client"
	"github.com/qiminjie89/gochat/internal/executor"
	"github.com/qiminjie89/gochat/pkg/config"
	"github.com/qiminjie89/gochat/pkg/logger"
	"go.uber.org/zap"
)

var (
	configPath = flag.String("config", "configs/chatclient.yaml", "config file path")
	user       = flag.String("user", "", "account name")
	password   = flag.String("password", "", "account password")
	room       = flag.String("room", "", "room to join after login")
)

func main() {
	flag.Parse()
	if *user == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "usage: chatclient -user NAME -password PASS [-room #ROOM]")
		os.Exit(2)
	}

	cfg, err := config.LoadClientConfig(*configPath)
	if err != nil {
		panic("load config failed: " + err.Error())
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}); err != nil {
		panic("init logger failed: " + err.Error())
	}
	defer logger.Sync()

	exec := executor.New()
	loop := client.NewEventLoop(cfg, exec, printChat)
	if err := loop.Dial(); err != nil {
		logger.Error("connect failed", zap.Error(err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := loop.Client()
	if *room != "" {
		c.OnLogin(func() {
			if err := c.JoinRoom(*room); err != nil {
				fmt.Fprintln(os.Stderr, "join:", err)
			}
		})
	}
	exec.Schedule(func() { c.Login(*user, *password) })

	go readCommands(exec, c)

	if err := loop.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("client loop failed", zap.Error(err))
		os.Exit(1)
	}
}

// printChat 打印一条收到的聊天消息
func printChat(sender, message, room string) {
	if room != "" {
		fmt.Printf("[%s] %s: %s\n", room, sender, message)
		return
	}
	fmt.Printf("%s: %s\n", sender, message)
}

// readCommands 从标准输入读取命令并调度到事件循环执行。
// 命令格式:
//
//	m <to> <text>  发送消息(to 为用户名或房间名)
//	j <#room>      加入房间
//	l <#room>      离开房间
//	a <user>       添加联系人
//	d <user>       删除联系人
//	c              查询联系人
//	q              退出
func readCommands(exec *executor.Executor, c *client.Client) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		cmd, rest, _ := strings.Cut(line, " ")
		switch cmd {
		case "m":
			to, text, ok := strings.Cut(rest, " ")
			if !ok {
				fmt.Fprintln(os.Stderr, "usage: m <to> <text>")
				continue
			}
			exec.Schedule(func() { c.SendMsg(to, text) })
		case "j":
			room := rest
			exec.Schedule(func() {
				if err := c.JoinRoom(room); err != nil {
					fmt.Fprintln(os.Stderr, "join:", err)
				}
			})
		case "l":
			room := rest
			exec.Schedule(func() {
				if err := c.LeaveRoom(room); err != nil {
					fmt.Fprintln(os.Stderr, "leave:", err)
				}
			})
		case "a":
			user := rest
			exec.Schedule(func() { c.AddContact(user) })
		case "d":
			user := rest
			exec.Schedule(func() { c.RemoveContact(user) })
		case "c":
			exec.Schedule(func() { c.GetContacts() })
		case "q":
			exec.Schedule(func() { c.Quit() })
			return
		default:
			fmt.Fprintln(os.Stderr, "unknown command:", cmd)
		}
	}
}
