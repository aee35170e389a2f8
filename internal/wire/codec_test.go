package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleDatagrams() []Datagram {
	seq := SequenceNumber{Counter: 7, ProposerID: 3}
	return []Datagram{
		RequestDatagram(NewPropose(0)),
		RequestDatagram(NewPropose(4294967295)),
		RequestDatagram(NewPrepare(seq)),
		RequestDatagram(NewAccept(seq, 1234)),
		RequestDatagram(NewLearn(99)),
		RequestDatagram(NewQuery()),
		ResponseDatagram(NewPromiseResponse(nil)),
		ResponseDatagram(NewPromiseResponse(&AcceptedProposal{Seq: seq, Value: 42})),
		ResponseDatagram(NewAcceptResponse(seq)),
		ResponseDatagram(func() Response { v := Value(55); return NewQueryResponse(&v) }()),
		ResponseDatagram(NewQueryResponse(nil)),
	}
}

// TestCodecRoundTrip is property P6: decode(encode(d, s)) == (s, d) for every
// variant and a representative set of src ids.
func TestCodecRoundTrip(t *testing.T) {
	for _, src := range []ReplicaId{0, 1, 42} {
		for _, d := range sampleDatagrams() {
			var buf bytes.Buffer
			require.NoError(t, WriteFrame(&buf, src, d))

			gotSrc, gotD, err := ReadFrame(&buf)
			require.NoError(t, err)
			require.Equal(t, src, gotSrc)
			require.Equal(t, d, gotD)
		}
	}
}

func TestReadFrameShortHeaderIsError(t *testing.T) {
	_, _, err := ReadFrame(bytes.NewReader([]byte{1, 2, 3}))
	require.Error(t, err)
}

func TestDecodeDatagramUnknownKindIsError(t *testing.T) {
	_, err := DecodeDatagram([]byte{99})
	require.Error(t, err)
}

func TestReadFrameTruncatedPayloadIsError(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, 1, RequestDatagram(NewPropose(5))))
	truncated := buf.Bytes()[:buf.Len()-1]
	_, _, err := ReadFrame(bytes.NewReader(truncated))
	require.Error(t, err)
}

func TestSequenceNumberOrdering(t *testing.T) {
	a := SequenceNumber{Counter: 1, ProposerID: 5}
	b := SequenceNumber{Counter: 1, ProposerID: 9}
	c := SequenceNumber{Counter: 2, ProposerID: 1}

	require.True(t, a.Less(b))
	require.False(t, b.Less(a))
	require.True(t, b.Less(c))
	require.True(t, a.GreaterOrEqual(a))
	require.False(t, a.GreaterOrEqual(b))
}
