package chanutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnboundedPreservesFIFOOrder(t *testing.T) {
	u := NewUnbounded[int]()
	for i := 0; i < 10; i++ {
		u.Send(i)
	}
	u.Close()

	for i := 0; i < 10; i++ {
		select {
		case v, ok := <-u.Out():
			require.True(t, ok)
			assert.Equal(t, i, v)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for item")
		}
	}

	select {
	case _, ok := <-u.Out():
		assert.False(t, ok, "Out() must close once every buffered item is delivered")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Out() to close")
	}
}

func TestUnboundedSendNeverBlocksOnSlowConsumer(t *testing.T) {
	u := NewUnbounded[int]()
	done := make(chan struct{})

	go func() {
		for i := 0; i < 1000; i++ {
			u.Send(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Send blocked despite no consumer draining Out()")
	}
	u.Close()
}
