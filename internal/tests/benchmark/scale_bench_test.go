package benchmark

import (
	"testing"

	"github.com/yndnr/ledgersnap/internal/core/domain"
	"github.com/yndnr/ledgersnap/pkg/scale"
)

// BenchmarkScale_PullResponse measures SCALE decoding of sparse diff
// responses.
func BenchmarkScale_PullResponse(b *testing.B) {
	for _, n := range RoundSizes {
		b.Run(sizeName("receivers", n), func(b *testing.B) {
			round := makeRound(1, domain.InitialCheckpoint(), n, n)
			resp := domain.PullResponse{
				ShouldContinue: true,
				Receivers:      round.Receivers,
				Senders:        round.Senders,
			}
			data := scale.Encode(resp)

			b.SetBytes(int64(len(data)))
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := scale.DecodeExact[domain.PullResponse](data); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkScale_DenseReceivers measures decoding of the base64 dense
// receiver payload.
func BenchmarkScale_DenseReceivers(b *testing.B) {
	for _, n := range RoundSizes {
		b.Run(sizeName("receivers", n), func(b *testing.B) {
			round := makeRound(1, domain.InitialCheckpoint(), n, 0)
			payload := domain.EncodeReceivers(round.Receivers)

			b.SetBytes(int64(len(payload)))
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				rs, err := domain.DecodeReceivers(payload)
				if err != nil {
					b.Fatal(err)
				}
				if len(rs) != n {
					b.Fatalf("decoded %d receivers, want %d", len(rs), n)
				}
			}
		})
	}
}

// BenchmarkScale_Checkpoint measures encoding of the fixed-size checkpoint.
func BenchmarkScale_Checkpoint(b *testing.B) {
	cp := domain.InitialCheckpoint()
	for i := range cp.ReceiverIndex {
		cp.ReceiverIndex[i] = uint64(i * 1000)
	}
	cp.SenderIndex = 1 << 20

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if len(scale.Encode(cp)) != domain.CheckpointSize {
			b.Fatal("unexpected checkpoint size")
		}
	}
}
