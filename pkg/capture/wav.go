package capture

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/harunnryd/cryscope/pkg/errorsx"
)

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

// WAV is a decoded 16-bit PCM file. Samples are interleaved by channel.
type WAV struct {
	SampleRate int
	Channels   int
	Samples    []int16
}

// Mono averages interleaved channels into one.
func (w *WAV) Mono() []int16 {
	if w.Channels <= 1 {
		return w.Samples
	}
	frames := len(w.Samples) / w.Channels
	out := make([]int16, frames)
	for i := 0; i < frames; i++ {
		var sum int32
		for c := 0; c < w.Channels; c++ {
			sum += int32(w.Samples[i*w.Channels+c])
		}
		out[i] = int16(sum / int32(w.Channels))
	}
	return out
}

func (w *WAV) Duration() float64 {
	if w.SampleRate <= 0 || w.Channels <= 0 {
		return 0
	}
	return float64(len(w.Samples)/w.Channels) / float64(w.SampleRate)
}

type fmtChunk struct {
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

// DecodeWAV reads a RIFF/WAVE stream holding 16-bit PCM. Chunks other than
// "fmt " and "data" (LIST, fact, ...) are skipped.
func DecodeWAV(r io.Reader) (*WAV, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("read RIFF header: %w", err), errorsx.ReasonCaptureDecode)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, errorsx.Errorf(errorsx.ReasonCaptureDecode, "invalid WAV file: missing RIFF/WAVE header")
	}

	var (
		format  *fmtChunk
		samples []int16
	)
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, errorsx.Wrap(fmt.Errorf("read chunk header: %w", err), errorsx.ReasonCaptureDecode)
		}
		id := string(hdr[0:4])
		size := int64(binary.LittleEndian.Uint32(hdr[4:8]))
		switch id {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, errorsx.Wrap(fmt.Errorf("read fmt chunk: %w", err), errorsx.ReasonCaptureDecode)
			}
			var fc fmtChunk
			if err := binary.Read(bytes.NewReader(body), binary.LittleEndian, &fc); err != nil {
				return nil, errorsx.Wrap(fmt.Errorf("parse fmt chunk: %w", err), errorsx.ReasonCaptureDecode)
			}
			format = &fc
		case "data":
			if format == nil {
				return nil, errorsx.Errorf(errorsx.ReasonCaptureDecode, "invalid WAV file: data chunk before fmt chunk")
			}
			if err := checkFormat(format); err != nil {
				return nil, err
			}
			body, err := io.ReadAll(io.LimitReader(r, size))
			if err != nil {
				return nil, errorsx.Wrap(fmt.Errorf("read data chunk: %w", err), errorsx.ReasonCaptureDecode)
			}
			samples = make([]int16, len(body)/2)
			for i := range samples {
				samples[i] = int16(binary.LittleEndian.Uint16(body[i*2:]))
			}
			return &WAV{
				SampleRate: int(format.SampleRate),
				Channels:   int(format.NumChannels),
				Samples:    samples,
			}, nil
		default:
			if _, err := io.CopyN(io.Discard, r, size); err != nil {
				return nil, errorsx.Wrap(fmt.Errorf("skip %q chunk: %w", id, err), errorsx.ReasonCaptureDecode)
			}
		}
		if size%2 == 1 {
			if _, err := io.CopyN(io.Discard, r, 1); err != nil && err != io.EOF {
				return nil, errorsx.Wrap(err, errorsx.ReasonCaptureDecode)
			}
		}
	}
	return nil, errorsx.Errorf(errorsx.ReasonCaptureDecode, "invalid WAV file: missing data chunk")
}

func checkFormat(fc *fmtChunk) error {
	if fc.AudioFormat != wavFormatPCM && fc.AudioFormat != wavFormatExtensible {
		return errorsx.Errorf(errorsx.ReasonCaptureDecode, "unsupported audio format: %d (only PCM is supported)", fc.AudioFormat)
	}
	if fc.BitsPerSample != 16 {
		return errorsx.Errorf(errorsx.ReasonCaptureDecode, "unsupported bit depth: %d (only 16-bit is supported)", fc.BitsPerSample)
	}
	if fc.NumChannels == 0 || fc.SampleRate == 0 {
		return errorsx.Errorf(errorsx.ReasonCaptureDecode, "invalid WAV file: %d channels at %d Hz", fc.NumChannels, fc.SampleRate)
	}
	return nil
}

// EncodeWAV writes mono 16-bit PCM samples as a canonical 44-byte-header WAV.
func EncodeWAV(samples []int16, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	dataSize := uint32(len(samples) * 2)
	buf := bytes.NewBuffer(make([]byte, 0, 44+len(samples)*2))
	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, 36+dataSize)
	buf.WriteString("WAVEfmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, fmtChunk{
		AudioFormat:   wavFormatPCM,
		NumChannels:   1,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * 2,
		BlockAlign:    2,
		BitsPerSample: 16,
	})
	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, dataSize)
	if err := binary.Write(buf, binary.LittleEndian, samples); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}
	return buf.Bytes(), nil
}
