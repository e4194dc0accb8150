// Copyright 2024 Automat Framework Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package observability

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"runtime"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/akriventsev/automat/framework/core"
)

// DebugConfig конфигурация для debugging utilities
type DebugConfig struct {
	Enabled     bool
	EnablePprof bool
	PprofPort   int
}

// DefaultDebugConfig возвращает конфигурацию по умолчанию
func DefaultDebugConfig() DebugConfig {
	return DebugConfig{
		Enabled:     false,
		EnablePprof: false,
		PprofPort:   6060,
	}
}

// HealthCheck интерфейс для health checks
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// HealthCheckResult результат health check
type HealthCheckResult struct {
	Status    string                 `json:"status"`
	Checks    map[string]CheckResult `json:"checks"`
	Timestamp time.Time              `json:"timestamp"`
}

// CheckResult результат отдельной проверки
type CheckResult struct {
	Status   string        `json:"status"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration"`
}

// DebugManager менеджер для debugging utilities: pprof server,
// агрегированные health/readiness проверки
type DebugManager struct {
	config          DebugConfig
	pprofServer     *http.Server
	healthChecks    []HealthCheck
	readinessChecks []HealthCheck
	running         bool
	mu              sync.RWMutex
}

// NewDebugManager создает новый DebugManager
func NewDebugManager(config DebugConfig) *DebugManager {
	return &DebugManager{
		config:          config,
		healthChecks:    make([]HealthCheck, 0),
		readinessChecks: make([]HealthCheck, 0),
	}
}

// Start запускает debug server с pprof endpoints
func (dm *DebugManager) Start(ctx context.Context) error {
	dm.mu.Lock()
	dm.running = true
	dm.mu.Unlock()

	if dm.config.EnablePprof {
		mux := http.NewServeMux()
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

		dm.pprofServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", dm.config.PprofPort),
			Handler: mux,
		}

		go func() {
			if err := dm.pprofServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				_ = err
			}
		}()
	}

	return nil
}

// Stop останавливает debug server
func (dm *DebugManager) Stop(ctx context.Context) error {
	dm.mu.Lock()
	dm.running = false
	dm.mu.Unlock()

	if dm.pprofServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return dm.pprofServer.Shutdown(shutdownCtx)
	}

	return nil
}

// RegisterHealthCheck регистрирует health check
func (dm *DebugManager) RegisterHealthCheck(check HealthCheck) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.healthChecks = append(dm.healthChecks, check)
}

// RegisterReadinessCheck регистрирует readiness check
func (dm *DebugManager) RegisterReadinessCheck(check HealthCheck) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.readinessChecks = append(dm.readinessChecks, check)
}

// HealthCheckHandler возвращает Gin handler для health check
func (dm *DebugManager) HealthCheckHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		dm.mu.RLock()
		checks := dm.healthChecks
		dm.mu.RUnlock()

		result := HealthCheckResult{
			Status:    "healthy",
			Checks:    make(map[string]CheckResult),
			Timestamp: time.Now(),
		}

		allHealthy := true
		for _, check := range checks {
			start := time.Now()
			err := check.Check(ctx)
			duration := time.Since(start)

			status := "healthy"
			message := ""
			if err != nil {
				status = "unhealthy"
				message = err.Error()
				allHealthy = false
			}

			result.Checks[check.Name()] = CheckResult{
				Status:   status,
				Message:  message,
				Duration: duration,
			}
		}

		if !allHealthy {
			result.Status = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, result)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

// ReadinessCheckHandler возвращает Gin handler для readiness check
func (dm *DebugManager) ReadinessCheckHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		dm.mu.RLock()
		checks := dm.readinessChecks
		dm.mu.RUnlock()

		for _, check := range checks {
			if err := check.Check(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}

// ComponentHealthCheck адаптирует core.HealthCheckable компонент
// (messagebus адаптер, репозиторий) к интерфейсу HealthCheck
type ComponentHealthCheck struct {
	name      string
	component core.HealthCheckable
}

// NewComponentHealthCheck создает проверку для компонента фреймворка
func NewComponentHealthCheck(name string, component core.HealthCheckable) *ComponentHealthCheck {
	return &ComponentHealthCheck{name: name, component: component}
}

// Name возвращает имя проверки
func (h *ComponentHealthCheck) Name() string {
	return h.name
}

// Check выполняет проверку
func (h *ComponentHealthCheck) Check(ctx context.Context) error {
	if h.component == nil {
		return fmt.Errorf("component is nil")
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return h.component.HealthCheck(ctx)
}

// MemoryHealthCheck проверка использования памяти
type MemoryHealthCheck struct{}

// NewMemoryHealthCheck создает новый MemoryHealthCheck
func NewMemoryHealthCheck() *MemoryHealthCheck {
	return &MemoryHealthCheck{}
}

// Name возвращает имя проверки
func (h *MemoryHealthCheck) Name() string {
	return "memory"
}

// Check выполняет проверку
func (h *MemoryHealthCheck) Check(ctx context.Context) error {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	usedPercent := float64(m.Alloc) / float64(m.Sys) * 100
	if usedPercent > 95 {
		return fmt.Errorf("memory usage too high: %.2f%%", usedPercent)
	}

	return nil
}

// ProfileDispatch измеряет длительность обработки события и сообщает
// о медленных диспетчеризациях через callback
func ProfileDispatch(ctx context.Context, eventName string, slowThreshold time.Duration, onSlow func(eventName string, duration time.Duration), fn func() error) error {
	start := time.Now()
	err := fn()
	duration := time.Since(start)

	if slowThreshold > 0 && duration > slowThreshold && onSlow != nil {
		onSlow(eventName, duration)
	}

	return err
}
