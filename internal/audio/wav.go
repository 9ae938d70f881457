package audio

import (
	"bytes"
	"encoding/binary"
	"io"
)

// streamingDataSize marks a WAV stream of unknown length.
const streamingDataSize = 0xFFFFFFFF

// WAVStreamHeader returns a PCM16LE WAV header for a live stream whose
// length is not known up front. Transcription servers accept it as the
// prefix of the first chunk.
func WAVStreamHeader(sampleRate, channels int) []byte {
	var buf bytes.Buffer
	_ = writeWAVHeader(&buf, sampleRate, channels, streamingDataSize)
	return buf.Bytes()
}

// EncodeWAVPCM16LE wraps raw PCM16LE audio in a WAV container.
func EncodeWAVPCM16LE(pcm []byte, sampleRate, channels int) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeWAVHeader(&buf, sampleRate, channels, uint32(len(pcm))); err != nil {
		return nil, err
	}
	buf.Write(pcm)
	return buf.Bytes(), nil
}

func writeWAVHeader(out io.Writer, sampleRate, channels int, dataSize uint32) error {
	const (
		bitsPerSample = 16
		audioFormat   = 1 // PCM
	)
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if channels <= 0 {
		channels = 1
	}

	riffSize := dataSize
	if dataSize != streamingDataSize {
		riffSize = 36 + dataSize
	}

	fields := []any{
		[4]byte{'R', 'I', 'F', 'F'},
		riffSize,
		[4]byte{'W', 'A', 'V', 'E'},
		[4]byte{'f', 'm', 't', ' '},
		uint32(16),
		uint16(audioFormat),
		uint16(channels),
		uint32(sampleRate),
		uint32(sampleRate * channels * bitsPerSample / 8),
		uint16(channels * bitsPerSample / 8),
		uint16(bitsPerSample),
		[4]byte{'d', 'a', 't', 'a'},
		dataSize,
	}
	for _, f := range fields {
		if err := binary.Write(out, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	return nil
}
