package config

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	dotenvOnce sync.Once

	cacheMu sync.Mutex
	cache   = map[reflect.Type]any{}
)

// Load populates dst's fields from environment variables using caarlos0/env's
// `env`/`envDefault` struct tags, loading a `.env` file into the process
// environment on first use (missing is not an error — production deployments
// set real env vars instead). Each concrete type is parsed once per process;
// later calls for the same type copy the cached value into dst rather than
// re-reading the environment.
func Load[T any](dst *T) error {
	dotenvOnce.Do(func() {
		_ = godotenv.Load()
	})

	t := reflect.TypeOf(*dst)

	cacheMu.Lock()
	defer cacheMu.Unlock()

	if cached, ok := cache[t]; ok {
		*dst = *cached.(*T)
		return nil
	}

	if err := env.Parse(dst); err != nil {
		return fmt.Errorf("config: parse %s: %w", t, err)
	}

	cached := *dst
	cache[t] = &cached
	return nil
}

// MustLoad is Load but panics on failure, for use at process startup where a
// misconfigured environment should abort immediately.
func MustLoad[T any](dst *T) {
	if err := Load(dst); err != nil {
		panic(err)
	}
}
