package source

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/intuitionamiga/sonora"
)

// WAVFileSource is a minimal uncompressed-PCM WAV reader exposed as a
// Source. It bridges a decoded-audio byte stream into the engine's
// pull-based contract; it is not a general audio decoder (format
// probing and compressed-codec decode remain out of scope) — only the
// RIFF/WAVE container with 16-bit PCM or 32-bit IEEE-float data.
type WAVFileSource struct {
	channels    int
	sampleRate  int
	bitsPerSamp int
	isFloat     bool
	data        io.Reader
	exhausted   bool

	// dataStart is the byte offset of the start of the sample data
	// within data, valid only when data also implements io.Seeker (a
	// real file, not a streamed reader). Seek uses it to convert a
	// frame index into an absolute file offset.
	dataStart int64
	seekable  bool
}

// OpenWAV parses a WAV container's header from r and returns a Source
// ready to pull decoded frames from the remainder of the stream.
func OpenWAV(r io.Reader) (*WAVFileSource, error) {
	var riffHeader [12]byte
	if _, err := io.ReadFull(r, riffHeader[:]); err != nil {
		return nil, fmt.Errorf("source: reading RIFF header: %w", err)
	}
	if string(riffHeader[0:4]) != "RIFF" || string(riffHeader[8:12]) != "WAVE" {
		return nil, fmt.Errorf("source: not a WAV file")
	}

	w := &WAVFileSource{data: r}
	for {
		var chunkHeader [8]byte
		if _, err := io.ReadFull(r, chunkHeader[:]); err != nil {
			return nil, fmt.Errorf("source: reading chunk header: %w", err)
		}
		id := string(chunkHeader[0:4])
		size := binary.LittleEndian.Uint32(chunkHeader[4:8])

		switch id {
		case "fmt ":
			fmtBody := make([]byte, size)
			if _, err := io.ReadFull(r, fmtBody); err != nil {
				return nil, fmt.Errorf("source: reading fmt chunk: %w", err)
			}
			format := binary.LittleEndian.Uint16(fmtBody[0:2])
			w.channels = int(binary.LittleEndian.Uint16(fmtBody[2:4]))
			w.sampleRate = int(binary.LittleEndian.Uint32(fmtBody[4:8]))
			w.bitsPerSamp = int(binary.LittleEndian.Uint16(fmtBody[14:16]))
			w.isFloat = format == 3
		case "data":
			// Leave the reader positioned at the start of the sample
			// data; Write pulls directly from it as frames are needed.
			if seeker, ok := r.(io.Seeker); ok {
				if pos, err := seeker.Seek(0, io.SeekCurrent); err == nil {
					w.dataStart = pos
					w.seekable = true
				}
			}
			return w, nil
		default:
			if _, err := io.CopyN(io.Discard, r, int64(size)); err != nil {
				return nil, fmt.Errorf("source: skipping chunk %q: %w", id, err)
			}
		}
	}
}

func (w *WAVFileSource) ChannelCount() int { return w.channels }
func (w *WAVFileSource) SampleRate() int   { return w.sampleRate }
func (w *WAVFileSource) IsExhausted() bool { return w.exhausted }

// Weight implements sonora.Source: decoding PCM frames off a reader
// costs a flat unit of work while the file still has data left, and
// nothing once it has been fully read.
func (w *WAVFileSource) Weight() int {
	if w.exhausted {
		return 0
	}
	return 1
}

// Seek moves playback to the given frame index, counted from the start
// of the sample data. It returns sonora.ErrInvalidConfig if the
// underlying reader was not seekable (a streamed, non-file source).
func (w *WAVFileSource) Seek(frame int64) error {
	if !w.seekable {
		return fmt.Errorf("%w: source: WAV source is not seekable", sonora.ErrInvalidConfig)
	}
	bytesPerSample := w.bitsPerSamp / 8
	offset := w.dataStart + frame*int64(w.channels*bytesPerSample)
	if _, err := w.data.(io.Seeker).Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("source: seeking WAV data: %w", err)
	}
	w.exhausted = false
	return nil
}

// Write implements sonora.Source, decoding PCM16 or float32 frames
// directly into out.
func (w *WAVFileSource) Write(out []float32, _ sonora.SourceTime) (int, error) {
	if w.exhausted {
		return 0, nil
	}
	frames := len(out) / w.channels
	bytesPerSample := w.bitsPerSamp / 8
	raw := make([]byte, frames*w.channels*bytesPerSample)

	n, err := io.ReadFull(w.data, raw)
	framesRead := n / (w.channels * bytesPerSample)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return 0, fmt.Errorf("source: reading WAV data: %w", err)
	}
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		w.exhausted = true
	}

	for i := 0; i < framesRead*w.channels; i++ {
		off := i * bytesPerSample
		switch {
		case w.isFloat && w.bitsPerSamp == 32:
			bits := binary.LittleEndian.Uint32(raw[off : off+4])
			out[i] = math.Float32frombits(bits)
		case w.bitsPerSamp == 16:
			v := int16(binary.LittleEndian.Uint16(raw[off : off+2]))
			out[i] = float32(v) / 32768.0
		default:
			out[i] = 0
		}
	}
	for i := framesRead * w.channels; i < len(out); i++ {
		out[i] = 0
	}
	return framesRead, nil
}
