package keylock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyLock_Serializes_Same_Key(t *testing.T) {
	req := require.New(t)
	locks := New()
	counter := 0
	var wg sync.WaitGroup

	// When many goroutines increment under the same key
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("chat-1")
			defer unlock()
			v := counter
			counter = v + 1
		}()
	}
	wg.Wait()

	// Then no increment is lost
	req.Equal(200, counter)
	// And the entry has been released
	req.Zero(locks.Len())
}

func TestKeyLock_Different_Keys_Do_Not_Block(t *testing.T) {
	req := require.New(t)
	locks := New()

	// Given a held key
	unlockA := locks.Lock("a")

	// When another key is requested
	done := make(chan struct{})
	go func() {
		unlockB := locks.Lock("b")
		unlockB()
		close(done)
	}()

	// Then it is granted while the first is still held
	<-done
	req.Equal(1, locks.Len())
	unlockA()
	req.Zero(locks.Len())
}
