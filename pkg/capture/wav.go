package capture

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// WriteWAV writes the recorded frames to a timestamped WAV file in dir
// and returns its path. The file is 16-bit PCM at the given sample
// rate and channel count. When frames is empty, nothing is written and
// the returned path is empty.
func WriteWAV(dir string, frames [][]byte, sampleRate, channels int, now time.Time) (string, error) {
	if len(frames) == 0 {
		return "", nil
	}

	var pcm bytes.Buffer
	for _, f := range frames {
		pcm.Write(f)
	}

	path := filepath.Join(dir, fmt.Sprintf("recorded_audio_%s.wav", now.Format("20060102_150405")))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("capture: create wav: %w", err)
	}
	defer f.Close()

	dataLen := uint32(pcm.Len())
	byteRate := uint32(sampleRate * channels * 2)
	blockAlign := uint16(channels * 2)

	var header bytes.Buffer
	header.WriteString("RIFF")
	binary.Write(&header, binary.LittleEndian, 36+dataLen)
	header.WriteString("WAVE")
	header.WriteString("fmt ")
	binary.Write(&header, binary.LittleEndian, uint32(16))
	binary.Write(&header, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&header, binary.LittleEndian, uint16(channels))
	binary.Write(&header, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&header, binary.LittleEndian, byteRate)
	binary.Write(&header, binary.LittleEndian, blockAlign)
	binary.Write(&header, binary.LittleEndian, uint16(16)) // bits per sample
	header.WriteString("data")
	binary.Write(&header, binary.LittleEndian, dataLen)

	if _, err := f.Write(header.Bytes()); err != nil {
		return "", fmt.Errorf("capture: write wav header: %w", err)
	}
	if _, err := f.Write(pcm.Bytes()); err != nil {
		return "", fmt.Errorf("capture: write wav data: %w", err)
	}
	return path, nil
}
