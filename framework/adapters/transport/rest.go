// Package transport предоставляет HTTP интроспекцию экземпляров саг.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/akriventsev/automat/framework/core"
	"github.com/akriventsev/automat/framework/saga"
)

// RESTConfig конфигурация для REST адаптера
type RESTConfig struct {
	Port     int
	BasePath string
	// ReleaseMode отключает debug-логирование gin
	ReleaseMode bool
}

// DefaultRESTConfig возвращает конфигурацию REST по умолчанию
func DefaultRESTConfig() RESTConfig {
	return RESTConfig{
		Port:        8080,
		BasePath:    "/api/v1",
		ReleaseMode: true,
	}
}

// RESTAdapter read-only HTTP интроспекция саг: состояние экземпляра,
// история переходов, журнал ошибок. Команды в сагу не принимает —
// единственный вход для событий остается message bus.
type RESTAdapter struct {
	config     RESTConfig
	router     *gin.Engine
	repos      map[string]saga.Repository // имя процессора -> хранилище
	healthable []core.HealthCheckable
	server     *http.Server
	running    bool
}

// NewRESTAdapter создает новый REST адаптер
func NewRESTAdapter(config RESTConfig) *RESTAdapter {
	if config.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}
	adapter := &RESTAdapter{
		config: config,
		router: gin.New(),
		repos:  make(map[string]saga.Repository),
	}
	adapter.router.Use(gin.Recovery())
	adapter.registerRoutes()
	return adapter
}

// RegisterSaga публикует интроспекцию экземпляров процессора
func (r *RESTAdapter) RegisterSaga(processorName string, repo saga.Repository) {
	r.repos[processorName] = repo
}

// RegisterHealthCheck добавляет компонент в проверку /healthz
func (r *RESTAdapter) RegisterHealthCheck(component core.HealthCheckable) {
	r.healthable = append(r.healthable, component)
}

// registerRoutes настраивает маршруты интроспекции
func (r *RESTAdapter) registerRoutes() {
	r.router.GET("/healthz", r.handleHealth)

	group := r.router.Group(r.config.BasePath)
	group.GET("/sagas/:processor/:correlation_id", r.handleGetInstance)
	group.GET("/sagas/:processor/:correlation_id/history", r.handleGetHistory)
}

// handleHealth проверяет зарегистрированные компоненты
func (r *RESTAdapter) handleHealth(c *gin.Context) {
	ctx := c.Request.Context()
	for _, component := range r.healthable {
		if err := component.HealthCheck(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleGetInstance возвращает текущее состояние экземпляра
func (r *RESTAdapter) handleGetInstance(c *gin.Context) {
	instance, ok := r.findInstance(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, instance)
}

// handleGetHistory возвращает историю переходов экземпляра
func (r *RESTAdapter) handleGetHistory(c *gin.Context) {
	instance, ok := r.findInstance(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"correlation_id": instance.CorrelationID,
		"current_state":  instance.CurrentState,
		"version":        instance.Version,
		"state_history":  instance.StateHistory,
		"errors":         instance.Errors,
	})
}

// findInstance извлекает экземпляр из path-параметров запроса
func (r *RESTAdapter) findInstance(c *gin.Context) (*saga.Instance, bool) {
	repo, exists := r.repos[c.Param("processor")]
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown saga processor: %s", c.Param("processor"))})
		return nil, false
	}

	instance, err := repo.Find(c.Request.Context(), c.Param("correlation_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	if instance == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "saga instance not found"})
		return nil, false
	}
	return instance, true
}

// Router возвращает gin router (для тестов и кастомных маршрутов)
func (r *RESTAdapter) Router() *gin.Engine {
	return r.router
}

// Start запускает HTTP сервер (реализация core.Lifecycle)
func (r *RESTAdapter) Start(ctx context.Context) error {
	r.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", r.config.Port),
		Handler: r.router,
	}

	go func() {
		if err := r.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = err
		}
	}()

	r.running = true
	return nil
}

// Stop останавливает HTTP сервер (реализация core.Lifecycle)
func (r *RESTAdapter) Stop(ctx context.Context) error {
	r.running = false
	if r.server != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		return r.server.Shutdown(shutdownCtx)
	}
	return nil
}

// IsRunning проверяет, запущен ли адаптер (реализация core.Lifecycle)
func (r *RESTAdapter) IsRunning() bool {
	return r.running
}

// Name возвращает имя компонента (реализация core.Component)
func (r *RESTAdapter) Name() string {
	return "rest-introspection"
}

// Type возвращает тип компонента (реализация core.Component)
func (r *RESTAdapter) Type() core.ComponentType {
	return core.ComponentTypeTransport
}
