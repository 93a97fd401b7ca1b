package control

import (
	"encoding/binary"
	"fmt"
	"math"
	"net"
)

// TLV wire format: each field is one type byte, one length byte, then
// the value. Integers are big-endian with leading zero bytes stripped,
// so the value zero encodes with length 0. Floats are carried as the
// big-endian bits of their IEEE-754 representation. Values longer than
// 127 bytes use an extended length: 0x80|n, then n big-endian length
// bytes.

// encodeInt appends a TLV-encoded integer field to buf.
func encodeInt(buf []byte, t StatusType, v int64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(v))
	start := 0
	for start < 8 && tmp[start] == 0 {
		start++
	}
	buf = append(buf, byte(t), byte(8-start))
	return append(buf, tmp[start:]...)
}

// encodeFloat32 appends a TLV-encoded float32 field to buf.
func encodeFloat32(buf []byte, t StatusType, v float32) []byte {
	return encodeInt(buf, t, int64(math.Float32bits(v)))
}

// encodeFloat64 appends a TLV-encoded float64 field to buf.
func encodeFloat64(buf []byte, t StatusType, v float64) []byte {
	return encodeInt(buf, t, int64(math.Float64bits(v)))
}

// encodeString appends a TLV-encoded string field to buf. Strings up
// to 65535 bytes are supported via the extended length form.
func encodeString(buf []byte, t StatusType, s string) []byte {
	if len(s) > 65535 {
		s = s[:65535]
	}
	n := len(s)
	buf = append(buf, byte(t))
	switch {
	case n < 128:
		buf = append(buf, byte(n))
	case n < 256:
		buf = append(buf, 0x81, byte(n))
	default:
		buf = append(buf, 0x82, byte(n>>8), byte(n))
	}
	return append(buf, s...)
}

// encodeEOL appends the end-of-list marker.
func encodeEOL(buf []byte) []byte {
	return append(buf, byte(TypeEOL), 0)
}

// decodeInt interprets a TLV value as a big-endian integer. Values
// longer than 8 bytes keep the low 8.
func decodeInt(v []byte) int64 {
	var r uint64
	for _, b := range v {
		r = r<<8 | uint64(b)
	}
	return int64(r)
}

// decodeUint returns the value as an unsigned integer.
func decodeUint(v []byte) uint64 {
	var r uint64
	for _, b := range v {
		r = r<<8 | uint64(b)
	}
	return r
}

// decodeFloat32 interprets a TLV value as a float encoded via its
// IEEE-754 bits. Daemons emit float fields as either 4 or 8 bytes.
func decodeFloat32(v []byte) float32 {
	if len(v) > 4 {
		return float32(decodeFloat64(v))
	}
	return math.Float32frombits(uint32(decodeUint(v)))
}

// decodeFloat64 interprets a TLV value as a float64.
func decodeFloat64(v []byte) float64 {
	if len(v) <= 4 {
		return float64(math.Float32frombits(uint32(decodeUint(v))))
	}
	return math.Float64frombits(decodeUint(v))
}

// decodeBool treats any nonzero integer as true.
func decodeBool(v []byte) bool {
	return decodeUint(v) != 0
}

// decodeString returns the value bytes as a string.
func decodeString(v []byte) string {
	return string(v)
}

// decodeSocket decodes a sockaddr-style value: 2-byte address family,
// 2-byte big-endian port, then the address bytes.
func decodeSocket(v []byte) (string, error) {
	if len(v) < 8 {
		return "", fmt.Errorf("socket value has %d bytes, want at least 8", len(v))
	}
	family := binary.BigEndian.Uint16(v[0:2])
	port := binary.BigEndian.Uint16(v[2:4])
	switch family {
	case 2: // AF_INET
		ip := net.IP(v[4:8])
		return fmt.Sprintf("%s:%d", ip, port), nil
	case 10, 30: // AF_INET6 (Linux, Darwin)
		if len(v) < 20 {
			return "", fmt.Errorf("short IPv6 socket value: %d bytes", len(v))
		}
		ip := net.IP(v[4:20])
		return fmt.Sprintf("[%s]:%d", ip, port), nil
	default:
		return "", fmt.Errorf("unknown address family %d", family)
	}
}

// tlvField is one decoded type/value pair.
type tlvField struct {
	Type  StatusType
	Value []byte
}

// parseTLV splits the body of a control-plane packet (everything after
// the packet type byte) into fields. Parsing stops at an EOL marker or
// the end of the buffer. Truncated fields produce an error.
func parseTLV(body []byte) ([]tlvField, error) {
	var fields []tlvField
	i := 0
	for i < len(body) {
		t := StatusType(body[i])
		i++
		if t == TypeEOL {
			break
		}
		if i >= len(body) {
			return nil, fmt.Errorf("truncated field type %d: missing length", t)
		}
		n := int(body[i])
		i++
		if n&0x80 != 0 {
			// Extended length: 0x80|k, then k big-endian length bytes.
			k := n & 0x7f
			if i+k > len(body) {
				return nil, fmt.Errorf("truncated field type %d: missing extended length", t)
			}
			n = 0
			for _, b := range body[i : i+k] {
				n = n<<8 | int(b)
			}
			i += k
		}
		if i+n > len(body) {
			return nil, fmt.Errorf("truncated field type %d: want %d bytes, have %d", t, n, len(body)-i)
		}
		fields = append(fields, tlvField{Type: t, Value: body[i : i+n]})
		i += n
	}
	return fields, nil
}
