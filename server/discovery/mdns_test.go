package discovery

import (
	"errors"
	"testing"
)

func TestAdvertise_InvalidPort(t *testing.T) {
	for _, port := range []int{0, -1, 70000} {
		if _, err := Advertise("test", port, nil); !errors.Is(err, ErrInvalidPort) {
			t.Errorf("port %d: err = %v, want ErrInvalidPort", port, err)
		}
	}
}
