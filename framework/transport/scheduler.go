// Package transport предоставляет планировщик таймаутов саги.
package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/akriventsev/automat/framework/saga"
)

// TimeoutPayload payload события таймаута
type TimeoutPayload struct {
	SagaID    string `json:"saga_id"`
	TimeoutID string `json:"timeout_id"`
}

// CorrelationID возвращает correlation ID саги, запросившей таймаут
func (p TimeoutPayload) CorrelationID() string {
	return p.SagaID
}

// TimerScheduler планировщик таймаутов на in-process таймерах.
// По истечении задержки публикует событие таймаута в message bus, откуда
// оно доставляется саге как обычное входящее событие. Таймеры не переживают
// перезапуск процесса; для durable-таймаутов используйте внешний планировщик.
type TimerScheduler struct {
	mu        sync.Mutex
	publisher Publisher
	codec     *Codec
	subject   string
	timers    map[string]*time.Timer
	stopped   bool
}

// NewTimerScheduler создает планировщик, публикующий события таймаутов
// в указанный subject
func NewTimerScheduler(publisher Publisher, codec *Codec, subject string) *TimerScheduler {
	return &TimerScheduler{
		publisher: publisher,
		codec:     codec,
		subject:   subject,
		timers:    make(map[string]*time.Timer),
	}
}

// Schedule планирует публикацию события eventName через delay.
// Возвращает идентификатор таймаута для последующей отмены.
func (s *TimerScheduler) Schedule(ctx context.Context, correlationID, eventName string, delay time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return "", fmt.Errorf("timeout scheduler is stopped")
	}

	timeoutID := uuid.New().String()
	s.timers[timeoutID] = time.AfterFunc(delay, func() {
		s.fire(timeoutID, correlationID, eventName)
	})
	return timeoutID, nil
}

// Cancel отменяет запланированный таймаут. Отмена неизвестного или уже
// сработавшего таймаута не является ошибкой.
func (s *TimerScheduler) Cancel(ctx context.Context, timeoutID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.timers[timeoutID]; ok {
		timer.Stop()
		delete(s.timers, timeoutID)
	}
	return nil
}

// Shutdown останавливает все запланированные таймауты
func (s *TimerScheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
	return nil
}

// fire публикует событие таймаута и снимает таймер с учета
func (s *TimerScheduler) fire(timeoutID, correlationID, eventName string) {
	s.mu.Lock()
	delete(s.timers, timeoutID)
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return
	}

	event := saga.NewEvent(eventName, TimeoutPayload{
		SagaID:    correlationID,
		TimeoutID: timeoutID,
	})
	msg, err := s.codec.Encode(s.subject, event)
	if err != nil {
		return
	}
	_ = s.publisher.Publish(context.Background(), msg.Subject, msg.Data, msg.Headers)
}
