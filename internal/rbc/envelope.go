package rbc

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/drand/ledger-beacon/common/address"
)

type kind uint64

const (
	kindVal kind = iota + 1
	kindEcho
	kindReady
)

// envelope is the on-wire unit the echo/ready protocol exchanges. origin is
// the address that called SetQuestion; it is carried explicitly because
// ECHO/READY messages are relayed by peers other than origin.
type envelope struct {
	kind    kind
	origin  address.Address
	tag     string
	payload []byte
}

func encodeEnvelope(e envelope) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.kind))
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendBytes(b, e.origin[:])
	b = protowire.AppendTag(b, 3, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte(e.tag))
	b = protowire.AppendTag(b, 4, protowire.BytesType)
	b = protowire.AppendBytes(b, e.payload)
	return b
}

func decodeEnvelope(b []byte) (envelope, error) {
	var e envelope
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return e, fmt.Errorf("rbc: invalid envelope tag")
		}
		b = b[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return e, fmt.Errorf("rbc: invalid kind")
			}
			e.kind = kind(v)
			b = b[n:]
		case 2:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return e, fmt.Errorf("rbc: invalid origin")
			}
			copy(e.origin[:], v)
			b = b[n:]
		case 3:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return e, fmt.Errorf("rbc: invalid tag")
			}
			e.tag = string(v)
			b = b[n:]
		case 4:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return e, fmt.Errorf("rbc: invalid payload")
			}
			e.payload = append([]byte(nil), v...)
			b = b[n:]
		default:
			switch typ {
			case protowire.VarintType:
				_, n := protowire.ConsumeVarint(b)
				b = b[n:]
			case protowire.BytesType:
				_, n := protowire.ConsumeBytes(b)
				b = b[n:]
			default:
				return e, fmt.Errorf("rbc: unsupported field %d", num)
			}
		}
	}
	return e, nil
}
