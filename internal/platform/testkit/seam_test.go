package testkit

import (
	"sync"
	"testing"
	"time"
)

var (
	retryBase = 250 * time.Millisecond
	now       = func() string { return "real" }
)

func TestSwap_RestoresAfterSubtest(t *testing.T) {
	t.Run("swapped", func(t *testing.T) {
		Swap(t, &now, func() string { return "fake" })
		Swap(t, &retryBase, time.Millisecond)
		if now() != "fake" || retryBase != time.Millisecond {
			t.Fatalf("swap did not take effect")
		}
	})
	if now() != "real" || retryBase != 250*time.Millisecond {
		t.Fatalf("swap not restored: %s %v", now(), retryBase)
	}
}

func TestSerial_NoInterleaving(t *testing.T) {
	var (
		mu  sync.Mutex
		seq []string
	)
	record := func(s string) {
		mu.Lock()
		seq = append(seq, s)
		mu.Unlock()
	}

	t.Run("group", func(t *testing.T) {
		for _, name := range []string{"a", "b"} {
			t.Run(name, func(t *testing.T) {
				t.Parallel()
				Serial(t)
				record(name + "-start")
				time.Sleep(20 * time.Millisecond)
				record(name + "-end")
			})
		}
	})

	if len(seq) != 4 {
		t.Fatalf("seq %v", seq)
	}
	for i := 0; i < 4; i += 2 {
		if seq[i][:1] != seq[i+1][:1] {
			t.Fatalf("interleaved: %v", seq)
		}
	}
}
