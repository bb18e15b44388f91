package executor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDrainRunsTasksInOrder(t *testing.T) {
	e := New()

	var got []int
	for i := 0; i < 5; i++ {
		i := i
		e.Schedule(func() { got = append(got, i) })
	}

	assert.Equal(t, 5, e.Pending())
	assert.Equal(t, 5, e.Drain())
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
	assert.Zero(t, e.Pending())
}

func TestDrainEmpty(t *testing.T) {
	e := New()
	assert.Zero(t, e.Drain())
}

func TestScheduleDuringDrain(t *testing.T) {
	e := New()

	ran := false
	e.Schedule(func() {
		e.Schedule(func() { ran = true })
	})

	// 执行中投递的任务也在同一次 Drain 中完成
	assert.Equal(t, 2, e.Drain())
	assert.True(t, ran)
}

func TestReadySignal(t *testing.T) {
	e := New()

	select {
	case <-e.Ready():
		t.Fatal("ready before any task scheduled")
	default:
	}

	e.Schedule(func() {})
	e.Schedule(func() {})

	select {
	case <-e.Ready():
	case <-time.After(time.Second):
		t.Fatal("no ready signal after schedule")
	}

	assert.Equal(t, 2, e.Drain())
}

func TestCrossGoroutineSchedule(t *testing.T) {
	e := New()

	const n = 100
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < n; i++ {
			e.Schedule(func() {})
		}
	}()

	// 消费端模拟事件循环:等信号、清空队列
	total := 0
	timeout := time.After(5 * time.Second)
	for total < n {
		select {
		case <-e.Ready():
			total += e.Drain()
		case <-timeout:
			t.Fatalf("drained %d of %d tasks", total, n)
		}
	}

	<-done
	require.Equal(t, n, total)
	assert.Zero(t, e.Pending())
}
