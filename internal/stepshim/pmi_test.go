package stepshim

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKVStorePutGet(t *testing.T) {
	k := newKVStore(1)
	require.NoError(t, k.put("key", "value"))
	v, ok := k.get("key")
	require.True(t, ok)
	require.Equal(t, "value", v)

	_, ok = k.get("missing")
	require.False(t, ok)
}

func TestKVStorePutRejectsOversize(t *testing.T) {
	k := newKVStore(1)
	big := make([]byte, maxKeyLen+1)
	err := k.put(string(big), "v")
	require.ErrorIs(t, err, errOversize)
}

func TestKVStoreSnapshotIsSortedByKey(t *testing.T) {
	k := newKVStore(1)
	require.NoError(t, k.put("b", "2"))
	require.NoError(t, k.put("a", "1"))
	pairs := k.snapshot()
	require.Equal(t, []kvPair{{"a", "1"}, {"b", "2"}}, pairs)
}

func TestKVStoreBarrierReleasesAllWaiters(t *testing.T) {
	k := newKVStore(3)
	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = k.barrierWait()
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, uint64(1), k.gen)
}

func TestKVStoreAbortWaitersFailsBlockedBarrier(t *testing.T) {
	k := newKVStore(2)
	var wg sync.WaitGroup
	var err error
	wg.Add(1)
	go func() {
		defer wg.Done()
		err = k.barrierWait()
	}()

	// Give the goroutine a chance to register as waiting before aborting.
	for {
		k.mu.Lock()
		waiting := k.waiting
		k.mu.Unlock()
		if waiting == 1 {
			break
		}
	}
	k.abortWaiters(errPeerLost)
	wg.Wait()
	require.ErrorIs(t, err, errPeerLost)
}
