package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// WriteWAVHeader writes a 44-byte PCM WAV header for dataLen bytes of
// s16le audio.
func WriteWAVHeader(w io.Writer, sampleRate, channels int, dataLen int64) error {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if channels <= 0 {
		channels = 1
	}

	byteRate := sampleRate * channels * 2
	blockAlign := channels * 2

	var header [44]byte
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+dataLen))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], 16) // bits per sample
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(dataLen))

	_, err := w.Write(header[:])
	return err
}

// FinalizeWAV converts a raw s16le capture file into a WAV file at dst and
// removes the raw file on success.
func FinalizeWAV(rawPath, dst string, sampleRate, channels int) (int64, error) {
	raw, err := os.Open(rawPath)
	if err != nil {
		return 0, fmt.Errorf("open raw capture: %w", err)
	}
	defer raw.Close()

	info, err := raw.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat raw capture: %w", err)
	}

	out, err := os.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("create wav: %w", err)
	}

	if err := WriteWAVHeader(out, sampleRate, channels, info.Size()); err != nil {
		_ = out.Close()
		return 0, fmt.Errorf("write wav header: %w", err)
	}
	if _, err := io.Copy(out, raw); err != nil {
		_ = out.Close()
		return 0, fmt.Errorf("copy pcm data: %w", err)
	}
	if err := out.Close(); err != nil {
		return 0, fmt.Errorf("close wav: %w", err)
	}

	_ = raw.Close()
	_ = os.Remove(rawPath)
	return info.Size() + 44, nil
}
