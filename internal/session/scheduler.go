package session

import (
	"sync"
	"time"
)

// Scheduler 周期任务，返回的 stop 可重复调用
type Scheduler interface {
	Every(interval time.Duration, fn func()) (stop func())
}

type TickerScheduler struct{}

func (TickerScheduler) Every(interval time.Duration, fn func()) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	var once sync.Once

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()

	return func() {
		once.Do(func() { close(done) })
	}
}
