package testing

import (
	"testing"

	"github.com/akriventsev/automat/framework/container"
)

// NewTestContainer создает контейнер зависимостей для теста.
// Переданные значения регистрируются по ключам через container.Set.
func NewTestContainer(t *testing.T, values map[string]interface{}) *container.Container {
	t.Helper()

	cnt := container.NewContainer()
	for key, value := range values {
		if err := container.Set(cnt, key, value); err != nil {
			t.Fatalf("failed to register %s in test container: %v", key, err)
		}
	}
	return cnt
}
