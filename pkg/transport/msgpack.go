package transport

import (
	"encoding/binary"
	"fmt"
	"math"
)

// decodeMsgPack decodes a single MessagePack value from buf, returning the
// decoded value and the number of bytes consumed. The push gateway's wire
// protocol is MessagePack with no schema registry available to generate a
// decoder from, so this implements exactly the subset of the spec the
// gateway is known to emit: fixint/negative fixint, nil, bool, fixmap/
// map16/map32, fixarray/array16/array32, fixstr/str8/16/32, bin8/16/32,
// uint8/16/32/64, int8/16/32/64, float32/64.
func decodeMsgPack(buf []byte) (any, int, error) {
	if len(buf) == 0 {
		return nil, 0, fmt.Errorf("msgpack: empty buffer")
	}
	b := buf[0]

	switch {
	case b <= 0x7f: // positive fixint
		return int64(b), 1, nil
	case b >= 0xe0: // negative fixint
		return int64(int8(b)), 1, nil
	case b&0xf0 == 0x80: // fixmap
		return decodeMap(buf, 1, int(b&0x0f))
	case b&0xf0 == 0x90: // fixarray
		return decodeArray(buf, 1, int(b&0x0f))
	case b&0xe0 == 0xa0: // fixstr
		n := int(b & 0x1f)
		return decodeStr(buf, 1, n)
	}

	switch b {
	case 0xc0:
		return nil, 1, nil
	case 0xc2:
		return false, 1, nil
	case 0xc3:
		return true, 1, nil
	case 0xc4: // bin8
		return decodeSizedBin(buf, 1, 1)
	case 0xc5: // bin16
		return decodeSizedBin(buf, 1, 2)
	case 0xc6: // bin32
		return decodeSizedBin(buf, 1, 4)
	case 0xca: // float32
		if len(buf) < 5 {
			return nil, 0, fmt.Errorf("msgpack: truncated float32")
		}
		bits := binary.BigEndian.Uint32(buf[1:5])
		return float64(math.Float32frombits(bits)), 5, nil
	case 0xcb: // float64
		if len(buf) < 9 {
			return nil, 0, fmt.Errorf("msgpack: truncated float64")
		}
		bits := binary.BigEndian.Uint64(buf[1:9])
		return math.Float64frombits(bits), 9, nil
	case 0xcc: // uint8
		if len(buf) < 2 {
			return nil, 0, fmt.Errorf("msgpack: truncated uint8")
		}
		return int64(buf[1]), 2, nil
	case 0xcd: // uint16
		if len(buf) < 3 {
			return nil, 0, fmt.Errorf("msgpack: truncated uint16")
		}
		return int64(binary.BigEndian.Uint16(buf[1:3])), 3, nil
	case 0xce: // uint32
		if len(buf) < 5 {
			return nil, 0, fmt.Errorf("msgpack: truncated uint32")
		}
		return int64(binary.BigEndian.Uint32(buf[1:5])), 5, nil
	case 0xcf: // uint64
		if len(buf) < 9 {
			return nil, 0, fmt.Errorf("msgpack: truncated uint64")
		}
		return binary.BigEndian.Uint64(buf[1:9]), 9, nil
	case 0xd0: // int8
		if len(buf) < 2 {
			return nil, 0, fmt.Errorf("msgpack: truncated int8")
		}
		return int64(int8(buf[1])), 2, nil
	case 0xd1: // int16
		if len(buf) < 3 {
			return nil, 0, fmt.Errorf("msgpack: truncated int16")
		}
		return int64(int16(binary.BigEndian.Uint16(buf[1:3]))), 3, nil
	case 0xd2: // int32
		if len(buf) < 5 {
			return nil, 0, fmt.Errorf("msgpack: truncated int32")
		}
		return int64(int32(binary.BigEndian.Uint32(buf[1:5]))), 5, nil
	case 0xd3: // int64
		if len(buf) < 9 {
			return nil, 0, fmt.Errorf("msgpack: truncated int64")
		}
		return int64(binary.BigEndian.Uint64(buf[1:9])), 9, nil
	case 0xd9: // str8
		return decodeSizedStr(buf, 1, 1)
	case 0xda: // str16
		return decodeSizedStr(buf, 1, 2)
	case 0xdb: // str32
		return decodeSizedStr(buf, 1, 4)
	case 0xdc: // array16
		return decodeSizedArray(buf, 2)
	case 0xdd: // array32
		return decodeSizedArray(buf, 4)
	case 0xde: // map16
		return decodeSizedMap(buf, 2)
	case 0xdf: // map32
		return decodeSizedMap(buf, 4)
	}

	return nil, 0, fmt.Errorf("msgpack: unsupported leading byte 0x%02x", b)
}

func readLen(buf []byte, offset, width int) (int, error) {
	if len(buf) < offset+width {
		return 0, fmt.Errorf("msgpack: truncated length field")
	}
	switch width {
	case 1:
		return int(buf[offset]), nil
	case 2:
		return int(binary.BigEndian.Uint16(buf[offset : offset+2])), nil
	case 4:
		return int(binary.BigEndian.Uint32(buf[offset : offset+4])), nil
	default:
		return 0, fmt.Errorf("msgpack: unsupported length width %d", width)
	}
}

func decodeStr(buf []byte, offset, n int) (any, int, error) {
	if len(buf) < offset+n {
		return nil, 0, fmt.Errorf("msgpack: truncated string")
	}
	return string(buf[offset : offset+n]), offset + n, nil
}

func decodeSizedStr(buf []byte, headerOffset, width int) (any, int, error) {
	n, err := readLen(buf, headerOffset, width)
	if err != nil {
		return nil, 0, err
	}
	start := headerOffset + width
	return decodeStr(buf, start, n)
}

func decodeSizedBin(buf []byte, headerOffset, width int) (any, int, error) {
	n, err := readLen(buf, headerOffset, width)
	if err != nil {
		return nil, 0, err
	}
	start := headerOffset + width
	if len(buf) < start+n {
		return nil, 0, fmt.Errorf("msgpack: truncated bin")
	}
	out := make([]byte, n)
	copy(out, buf[start:start+n])
	return out, start + n, nil
}

func decodeArray(buf []byte, offset, n int) (any, int, error) {
	items := make([]any, 0, n)
	pos := offset
	for i := 0; i < n; i++ {
		v, consumed, err := decodeMsgPack(buf[pos:])
		if err != nil {
			return nil, 0, err
		}
		items = append(items, v)
		pos += consumed
	}
	return items, pos, nil
}

func decodeSizedArray(buf []byte, width int) (any, int, error) {
	n, err := readLen(buf, 1, width)
	if err != nil {
		return nil, 0, err
	}
	return decodeArray(buf, 1+width, n)
}

// decodeMap decodes n key/value pairs starting at offset, storing keys
// under their string form so a map value can carry either string or
// integer keys transparently (the gateway mixes both across message
// types). Integer keys are rendered with fmt.Sprint, matching the
// dual string/int lookup the push gateway's payloads require.
func decodeMap(buf []byte, offset, n int) (any, int, error) {
	out := make(map[string]any, n)
	pos := offset
	for i := 0; i < n; i++ {
		k, consumed, err := decodeMsgPack(buf[pos:])
		if err != nil {
			return nil, 0, err
		}
		pos += consumed

		v, consumed, err := decodeMsgPack(buf[pos:])
		if err != nil {
			return nil, 0, err
		}
		pos += consumed

		out[mapKeyString(k)] = v
	}
	return out, pos, nil
}

func decodeSizedMap(buf []byte, width int) (any, int, error) {
	n, err := readLen(buf, 1, width)
	if err != nil {
		return nil, 0, err
	}
	return decodeMap(buf, 1+width, n)
}

func mapKeyString(k any) string {
	switch v := k.(type) {
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// lookupKey fetches a value from a decoded map by either its string form
// or, for numeric protocol fields, its integer form — some message types
// key their top-level map with stringified indices ("1", "2") while
// others use the raw integer.
func lookupKey(m map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v, true
		}
	}
	return nil, false
}
