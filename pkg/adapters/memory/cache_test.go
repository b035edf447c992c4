package memory_test

import (
	"testing"

	"github.com/aretw0/skein/pkg/adapters/memory"
	"github.com/aretw0/skein/pkg/ports"
)

func TestMemoryCache_Contract(t *testing.T) {
	cache := memory.NewCache()
	ports.RunCacheContract(t, cache)
}
