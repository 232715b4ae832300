package domain

import (
	"encoding/base64"
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yndnr/ledgersnap/pkg/scale"
)

func sampleRound(rng *rand.Rand, receivers, senders int) *Round {
	r := &Round{ShouldContinue: true}
	for i := 0; i < receivers; i++ {
		r.Receivers = append(r.Receivers, randomReceiver(rng))
	}
	for i := 0; i < senders; i++ {
		r.Senders = append(r.Senders, randomSender(rng))
	}
	r.Total[0] = byte(receivers + senders)
	return r
}

func TestPullResponse_CodecProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(3))

	for _, n := range [][2]int{{0, 0}, {1, 0}, {0, 2}, {3, 2}} {
		round := sampleRound(rng, n[0], n[1])
		resp := PullResponse{
			ShouldContinue:        round.ShouldContinue,
			Receivers:             round.Receivers,
			Senders:               round.Senders,
			SendersReceiversTotal: round.Total,
		}
		b := scale.Encode(resp)
		checkCodec[PullResponse](t, resp, b, resp.EncodedSize())
	}
}

func TestPullResponse_LengthMismatch(t *testing.T) {
	e := scale.NewEncoder(0)
	e.WriteBool(false)
	e.WriteCompact(2)
	Receiver{}.EncodeTo(e)

	_, err := scale.DecodeExact[PullResponse](e.Bytes())
	require.ErrorIs(t, err, scale.ErrLengthMismatch)
	require.Equal(t, 1, scale.Offset(err))
}

func TestPullResponse_Round(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	src := sampleRound(rng, 2, 1)
	resp := PullResponse{ShouldContinue: false, Receivers: src.Receivers, Senders: src.Senders}

	r := resp.Round()
	require.False(t, r.ShouldContinue)
	require.Nil(t, r.Next)
	require.Equal(t, src.Receivers, r.Receivers)
	require.Equal(t, src.Senders, r.Senders)
}

func TestDenseResponse_CodecProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	round := sampleRound(rng, 2, 2)
	next := randomCheckpoint(rng)
	round.Next = &next

	for _, resp := range []*DenseResponse{
		NewDenseResponse(round),
		NewDenseResponse(&Round{}),
	} {
		b := scale.Encode(*resp)
		checkCodec[DenseResponse](t, *resp, b, resp.EncodedSize())
	}
}

func TestDenseResponse_RoundDecodesPayloads(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	round := sampleRound(rng, 3, 2)
	next := Checkpoint{SenderIndex: 2}
	next.ReceiverIndex[1] = 3
	round.Next = &next

	dense := NewDenseResponse(round)
	got, err := dense.Round()
	require.NoError(t, err)
	require.Equal(t, round.Receivers, got.Receivers)
	require.Equal(t, round.Senders, got.Senders)
	require.Equal(t, round.Total, got.Total)
	require.Equal(t, next, *got.Next)
	require.NotSame(t, dense.NextCheckpoint, got.Next)
}

func TestDenseResponse_RejectsBadPayloads(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	good := NewDenseResponse(sampleRound(rng, 2, 1))

	raw, err := base64.StdEncoding.DecodeString(good.Receivers)
	require.NoError(t, err)

	tests := []struct {
		name    string
		mutate  func(d *DenseResponse)
		wantErr error
	}{
		{
			name:    "not base64",
			mutate:  func(d *DenseResponse) { d.Senders = "%%%" },
			wantErr: ErrInvalidPayload,
		},
		{
			name:    "truncated receivers",
			mutate:  func(d *DenseResponse) { d.Receivers = base64.StdEncoding.EncodeToString(raw[:len(raw)-1]) },
			wantErr: scale.ErrTruncatedInput,
		},
		{
			name:    "trailing receivers",
			mutate:  func(d *DenseResponse) { d.Receivers = base64.StdEncoding.EncodeToString(append(raw, 0)) },
			wantErr: scale.ErrTrailingBytes,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := *good
			tt.mutate(&d)
			r, err := d.Round()
			require.ErrorIs(t, err, tt.wantErr)
			require.Nil(t, r)
		})
	}
}

func TestDenseResponse_JSON(t *testing.T) {
	body := `{
		"should_continue": false,
		"receivers": "AA==",
		"senders": "AA==",
		"senders_receivers_total": [1,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0],
		"next_checkpoint": null
	}`

	var d DenseResponse
	require.NoError(t, json.Unmarshal([]byte(body), &d))
	require.Nil(t, d.NextCheckpoint)

	r, err := d.Round()
	require.NoError(t, err)
	require.True(t, r.Empty())
	require.Equal(t, uint64(1), r.TotalAmount().Uint64())
}

func TestPullRequest_Encoding(t *testing.T) {
	var cp Checkpoint
	cp.ReceiverIndex[0] = 10
	cp.SenderIndex = 5
	req := PullRequest{Checkpoint: cp, MaxReceivers: 1024, MaxSenders: 512}

	b := scale.Encode(req)
	require.Len(t, b, CheckpointSize+16)
	require.Equal(t, byte(10), b[0])
	require.Equal(t, byte(5), b[ShardCount*8])

	back, err := scale.DecodeExact[PullRequest](b)
	require.NoError(t, err)
	require.Equal(t, req, back)
}
