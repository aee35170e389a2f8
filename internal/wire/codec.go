package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// headerLen is the size of the frame header: src (8 bytes) + payload
// length (8 bytes), both big-endian.
const headerLen = 16

// EncodeDatagram serializes a Datagram's payload bytes (without the frame
// header). The format is tag-discriminated: an outer byte selects
// Request/Response, a second byte selects the inner variant, followed by
// that variant's fixed-width big-endian fields.
func EncodeDatagram(d Datagram) []byte {
	buf := make([]byte, 0, 32)
	buf = append(buf, byte(d.Kind))
	switch d.Kind {
	case DatagramRequest:
		buf = encodeRequest(buf, d.Request)
	case DatagramResponse:
		buf = encodeResponse(buf, d.Response)
	default:
		panic(fmt.Sprintf("wire: unknown datagram kind %d", d.Kind))
	}
	return buf
}

func encodeRequest(buf []byte, r Request) []byte {
	buf = append(buf, byte(r.Kind))
	switch r.Kind {
	case ReqPropose:
		buf = appendU32(buf, r.Value)
	case ReqPrepare:
		buf = appendSeq(buf, r.Seq)
	case ReqAccept:
		buf = appendSeq(buf, r.Seq)
		buf = appendU32(buf, r.Value)
	case ReqLearn:
		buf = appendU32(buf, r.Value)
	case ReqQuery:
		// no payload
	default:
		panic(fmt.Sprintf("wire: unknown request kind %d", r.Kind))
	}
	return buf
}

func encodeResponse(buf []byte, r Response) []byte {
	buf = append(buf, byte(r.Kind))
	switch r.Kind {
	case RespPrepare:
		if r.Accepted == nil {
			buf = append(buf, 0)
		} else {
			buf = append(buf, 1)
			buf = appendSeq(buf, r.Accepted.Seq)
			buf = appendU32(buf, r.Accepted.Value)
		}
	case RespAccept:
		buf = appendSeq(buf, r.Seq)
	case RespQuery:
		if r.QueryValue == nil {
			buf = append(buf, 0)
		} else {
			buf = append(buf, 1)
			buf = appendU32(buf, *r.QueryValue)
		}
	default:
		panic(fmt.Sprintf("wire: unknown response kind %d", r.Kind))
	}
	return buf
}

func appendU32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendU64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendSeq(buf []byte, s SequenceNumber) []byte {
	buf = appendU64(buf, s.Counter)
	buf = appendU64(buf, uint64(s.ProposerID))
	return buf
}

// decoder reads fixed-width fields off a byte slice, tracking position.
type decoder struct {
	buf []byte
	pos int
}

func (d *decoder) u8() (byte, error) {
	if d.pos+1 > len(d.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	v := d.buf[d.pos]
	d.pos++
	return v, nil
}

func (d *decoder) u32() (uint32, error) {
	if d.pos+4 > len(d.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	v := binary.BigEndian.Uint32(d.buf[d.pos : d.pos+4])
	d.pos += 4
	return v, nil
}

func (d *decoder) u64() (uint64, error) {
	if d.pos+8 > len(d.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	v := binary.BigEndian.Uint64(d.buf[d.pos : d.pos+8])
	d.pos += 8
	return v, nil
}

func (d *decoder) seq() (SequenceNumber, error) {
	counter, err := d.u64()
	if err != nil {
		return SequenceNumber{}, err
	}
	proposer, err := d.u64()
	if err != nil {
		return SequenceNumber{}, err
	}
	return SequenceNumber{Counter: counter, ProposerID: ReplicaId(proposer)}, nil
}

// DecodeDatagram deserializes a Datagram from its payload bytes (without the
// frame header). It is the inverse of EncodeDatagram.
func DecodeDatagram(payload []byte) (Datagram, error) {
	d := &decoder{buf: payload}
	kindByte, err := d.u8()
	if err != nil {
		return Datagram{}, fmt.Errorf("wire: decode datagram kind: %w", err)
	}
	switch DatagramKind(kindByte) {
	case DatagramRequest:
		req, err := decodeRequest(d)
		if err != nil {
			return Datagram{}, err
		}
		return RequestDatagram(req), nil
	case DatagramResponse:
		resp, err := decodeResponse(d)
		if err != nil {
			return Datagram{}, err
		}
		return ResponseDatagram(resp), nil
	default:
		return Datagram{}, fmt.Errorf("wire: unknown datagram kind %d", kindByte)
	}
}

func decodeRequest(d *decoder) (Request, error) {
	kindByte, err := d.u8()
	if err != nil {
		return Request{}, fmt.Errorf("wire: decode request kind: %w", err)
	}
	kind := RequestKind(kindByte)
	switch kind {
	case ReqPropose:
		v, err := d.u32()
		if err != nil {
			return Request{}, fmt.Errorf("wire: decode Propose.value: %w", err)
		}
		return NewPropose(v), nil
	case ReqPrepare:
		seq, err := d.seq()
		if err != nil {
			return Request{}, fmt.Errorf("wire: decode Prepare.seq: %w", err)
		}
		return NewPrepare(seq), nil
	case ReqAccept:
		seq, err := d.seq()
		if err != nil {
			return Request{}, fmt.Errorf("wire: decode Accept.seq: %w", err)
		}
		v, err := d.u32()
		if err != nil {
			return Request{}, fmt.Errorf("wire: decode Accept.value: %w", err)
		}
		return NewAccept(seq, v), nil
	case ReqLearn:
		v, err := d.u32()
		if err != nil {
			return Request{}, fmt.Errorf("wire: decode Learn.value: %w", err)
		}
		return NewLearn(v), nil
	case ReqQuery:
		return NewQuery(), nil
	default:
		return Request{}, fmt.Errorf("wire: unknown request kind %d", kindByte)
	}
}

func decodeResponse(d *decoder) (Response, error) {
	kindByte, err := d.u8()
	if err != nil {
		return Response{}, fmt.Errorf("wire: decode response kind: %w", err)
	}
	kind := ResponseKind(kindByte)
	switch kind {
	case RespPrepare:
		present, err := d.u8()
		if err != nil {
			return Response{}, fmt.Errorf("wire: decode Prepare response tag: %w", err)
		}
		if present == 0 {
			return NewPromiseResponse(nil), nil
		}
		seq, err := d.seq()
		if err != nil {
			return Response{}, fmt.Errorf("wire: decode Prepare response seq: %w", err)
		}
		v, err := d.u32()
		if err != nil {
			return Response{}, fmt.Errorf("wire: decode Prepare response value: %w", err)
		}
		return NewPromiseResponse(&AcceptedProposal{Seq: seq, Value: v}), nil
	case RespAccept:
		seq, err := d.seq()
		if err != nil {
			return Response{}, fmt.Errorf("wire: decode Accept response seq: %w", err)
		}
		return NewAcceptResponse(seq), nil
	case RespQuery:
		present, err := d.u8()
		if err != nil {
			return Response{}, fmt.Errorf("wire: decode Query response tag: %w", err)
		}
		if present == 0 {
			return NewQueryResponse(nil), nil
		}
		v, err := d.u32()
		if err != nil {
			return Response{}, fmt.Errorf("wire: decode Query response value: %w", err)
		}
		return NewQueryResponse(&v), nil
	default:
		return Response{}, fmt.Errorf("wire: unknown response kind %d", kindByte)
	}
}

// WriteFrame writes the 16-byte header (src, payload length) followed by the
// encoded Datagram payload.
func WriteFrame(w io.Writer, src ReplicaId, d Datagram) error {
	payload := EncodeDatagram(d)
	var header [headerLen]byte
	binary.BigEndian.PutUint64(header[0:8], uint64(src))
	binary.BigEndian.PutUint64(header[8:16], uint64(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("wire: write frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("wire: write frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads one frame from r: 16 header bytes, then exactly as many
// payload bytes as the header's length field says, then decodes the payload
// into a Datagram.
func ReadFrame(r io.Reader) (ReplicaId, Datagram, error) {
	var header [headerLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, Datagram{}, err
	}
	src := ReplicaId(binary.BigEndian.Uint64(header[0:8]))
	length := binary.BigEndian.Uint64(header[8:16])
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, Datagram{}, fmt.Errorf("wire: read frame payload: %w", err)
	}
	dgram, err := DecodeDatagram(payload)
	if err != nil {
		return 0, Datagram{}, err
	}
	return src, dgram, nil
}
