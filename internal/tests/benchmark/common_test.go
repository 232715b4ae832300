package benchmark

import (
	"fmt"
	"runtime"
	"testing"

	"github.com/yndnr/ledgersnap/internal/core/domain"
	"github.com/yndnr/ledgersnap/internal/tests/fakenode"
	"github.com/yndnr/ledgersnap/pkg/scale"
)

// RoundSizes are receivers (and senders) per round.
var RoundSizes = []int{64, 1024, 4096}

// EntryCounts are storage entries per group.
var EntryCounts = []int{1000, 10000, 50000}

// makeRound builds a round from `from` spreading receivers over all
// shards.
func makeRound(seq uint64, from domain.Checkpoint, receivers, senders int) *domain.Round {
	r := &domain.Round{Seq: seq, From: from}
	next := from
	for i := 0; i < receivers; i++ {
		shard := uint8(i % domain.ShardCount)
		r.Receivers = append(r.Receivers, fakenode.Receiver(shard, byte(i), uint64(i)))
		next.ReceiverIndex[shard]++
	}
	for i := 0; i < senders; i++ {
		r.Senders = append(r.Senders, fakenode.Sender(byte(i)))
		next.SenderIndex++
	}
	r.Next = &next
	return r
}

// makeKeys returns n distinct storage keys under the shards prefix.
func makeKeys(n int) []domain.StorageKey {
	prefix := domain.StoragePrefix(domain.DefaultPallet, domain.GroupShards.StorageItem())
	keys := make([]domain.StorageKey, n)
	for i := range keys {
		k := append(domain.StorageKey{}, prefix...)
		keys[i] = append(k, byte(i>>24), byte(i>>16), byte(i>>8), byte(i))
	}
	return keys
}

// makeValues returns n encoded receivers.
func makeValues(n int) [][]byte {
	values := make([][]byte, n)
	for i := range values {
		values[i] = scale.Encode(fakenode.Receiver(uint8(i%domain.ShardCount), byte(i), uint64(i)))
	}
	return values
}

func sizeName(kind string, n int) string {
	return fmt.Sprintf("%s_%d", kind, n)
}

// reportMemory reports heap usage after a GC.
func reportMemory(b *testing.B, prefix string) {
	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	b.ReportMetric(float64(m.HeapAlloc)/1024/1024, prefix+"_heap_MB")
}
