package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tss-ch/mas004-databridge/internal/model"
)

// EncodeZBCValue converts a literal value into wire bytes for codec, after
// applying the inverse linear scale/offset: wire = (value - offset) / scale.
func EncodeZBCValue(value string, codec model.Codec, scale, offset float64) ([]byte, error) {
	if codec == model.CodecASCII {
		return append([]byte(value), 0x00), nil
	}

	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("value %q is not numeric for codec %s: %w", value, codec, err)
	}
	scaled := (f - offset) / scale

	switch codec {
	case model.CodecU8:
		return []byte{byte(int64(math.Round(scaled)))}, nil
	case model.CodecU16LE:
		buf := make([]byte, 2)
		binary.LittleEndian.PutUint16(buf, uint16(int64(math.Round(scaled))))
		return buf, nil
	case model.CodecU32LE:
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, uint32(int64(math.Round(scaled))))
		return buf, nil
	case model.CodecI16LE:
		buf := make([]byte, 2)
		binary.LittleEndian.PutUint16(buf, uint16(int16(math.Round(scaled))))
		return buf, nil
	case model.CodecI32LE:
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, uint32(int32(math.Round(scaled))))
		return buf, nil
	case model.CodecF32LE:
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(scaled)))
		return buf, nil
	default:
		return nil, fmt.Errorf("unsupported codec: %s", codec)
	}
}

// DecodeZBCValue converts wire bytes for codec into a literal value string,
// applying the linear scale/offset: value = wire * scale + offset.
func DecodeZBCValue(data []byte, codec model.Codec, scale, offset float64) (string, error) {
	if codec == model.CodecASCII {
		if i := indexByte(data, 0x00); i >= 0 {
			data = data[:i]
		}
		return string(data), nil
	}

	var raw float64
	switch codec {
	case model.CodecU8:
		if len(data) < 1 {
			return "", fmt.Errorf("zbc value too short for u8")
		}
		raw = float64(data[0])
	case model.CodecU16LE:
		if len(data) < 2 {
			return "", fmt.Errorf("zbc value too short for u16le")
		}
		raw = float64(binary.LittleEndian.Uint16(data))
	case model.CodecU32LE:
		if len(data) < 4 {
			return "", fmt.Errorf("zbc value too short for u32le")
		}
		raw = float64(binary.LittleEndian.Uint32(data))
	case model.CodecI16LE:
		if len(data) < 2 {
			return "", fmt.Errorf("zbc value too short for i16le")
		}
		raw = float64(int16(binary.LittleEndian.Uint16(data)))
	case model.CodecI32LE:
		if len(data) < 4 {
			return "", fmt.Errorf("zbc value too short for i32le")
		}
		raw = float64(int32(binary.LittleEndian.Uint32(data)))
	case model.CodecF32LE:
		if len(data) < 4 {
			return "", fmt.Errorf("zbc value too short for f32le")
		}
		raw = float64(math.Float32frombits(binary.LittleEndian.Uint32(data)))
	default:
		return "", fmt.Errorf("unsupported codec: %s", codec)
	}

	value := raw*scale + offset
	if rounded := math.Round(value); math.Abs(value-rounded) < 1e-9 {
		return strconv.FormatInt(int64(rounded), 10), nil
	}
	s := strconv.FormatFloat(value, 'f', 6, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	return s, nil
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}
