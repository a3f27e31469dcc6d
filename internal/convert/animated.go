package convert

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	vp8xAnimationFlag = 0x02
	vp8xAlphaFlag     = 0x10

	riffHeaderLen = 12
	anmfHeaderLen = 16
)

var errNoFrame = errors.New("animated webp has no decodable frame")

type webpChunk struct {
	id   string
	data []byte
}

// isAnimatedWebP reports whether data is an extended WebP with the animation
// flag set. The VP8X chunk is always the first chunk of an extended file.
func isAnimatedWebP(data []byte) bool {
	if len(data) < riffHeaderLen+8+10 {
		return false
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WEBP" || string(data[12:16]) != "VP8X" {
		return false
	}
	return data[20]&vp8xAnimationFlag != 0
}

// firstFrame rewraps the first ANMF frame of an animated WebP as a still
// WebP that a plain decoder accepts. A lossy frame with an ALPH chunk gets a
// VP8X header sized to the frame.
func firstFrame(data []byte) ([]byte, error) {
	chunks, err := readChunks(data[riffHeaderLen:])
	if err != nil {
		return nil, err
	}
	for _, c := range chunks {
		if c.id != "ANMF" {
			continue
		}
		if len(c.data) < anmfHeaderLen {
			return nil, fmt.Errorf("short ANMF chunk (%d bytes)", len(c.data))
		}
		width := uint24(c.data[6:9]) + 1
		height := uint24(c.data[9:12]) + 1

		sub, err := readChunks(c.data[anmfHeaderLen:])
		if err != nil {
			return nil, fmt.Errorf("ANMF frame: %w", err)
		}
		var alph, bitstream *webpChunk
		for i := range sub {
			switch sub[i].id {
			case "ALPH":
				if alph == nil {
					alph = &sub[i]
				}
			case "VP8 ", "VP8L":
				if bitstream == nil {
					bitstream = &sub[i]
				}
			}
		}
		if bitstream == nil {
			return nil, errNoFrame
		}

		var body bytes.Buffer
		body.WriteString("WEBP")
		if alph != nil && bitstream.id == "VP8 " {
			vp8x := make([]byte, 10)
			vp8x[0] = vp8xAlphaFlag
			putUint24(vp8x[4:7], width-1)
			putUint24(vp8x[7:10], height-1)
			writeChunk(&body, "VP8X", vp8x)
			writeChunk(&body, "ALPH", alph.data)
		}
		writeChunk(&body, bitstream.id, bitstream.data)

		out := make([]byte, 8, 8+body.Len())
		copy(out, "RIFF")
		binary.LittleEndian.PutUint32(out[4:8], uint32(body.Len()))
		return append(out, body.Bytes()...), nil
	}
	return nil, errNoFrame
}

// readChunks splits a RIFF chunk sequence. Payloads are padded to even length.
func readChunks(b []byte) ([]webpChunk, error) {
	var chunks []webpChunk
	for len(b) >= 8 {
		id := string(b[:4])
		n := binary.LittleEndian.Uint32(b[4:8])
		if uint64(n) > uint64(len(b)-8) {
			return nil, fmt.Errorf("chunk %q truncated", id)
		}
		chunks = append(chunks, webpChunk{id: id, data: b[8 : 8+n]})
		next := 8 + int(n) + int(n&1)
		if next > len(b) {
			next = len(b)
		}
		b = b[next:]
	}
	return chunks, nil
}

func writeChunk(buf *bytes.Buffer, id string, payload []byte) {
	var hdr [8]byte
	copy(hdr[:4], id)
	binary.LittleEndian.PutUint32(hdr[4:], uint32(len(payload)))
	buf.Write(hdr[:])
	buf.Write(payload)
	if len(payload)%2 == 1 {
		buf.WriteByte(0)
	}
}

func uint24(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
}

func putUint24(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
}
