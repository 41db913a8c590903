package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("FINBOARD_TEST_MODE") == "" {
			_ = os.Setenv("FINBOARD_TEST_MODE", "1")
		}
	})
}
