package protocol

import (
	"io"

	"golang.org/x/xerrors"

	"github.com/gitdo/gitdo/ginternals/pktline"
)

// Channel represents a side-band channel number, sent as the first
// payload byte of every multiplexed packet
type Channel byte

const (
	// ChannelPack carries the raw packfile bytes
	ChannelPack Channel = 1
	// ChannelProgress carries human-readable progress messages
	ChannelProgress Channel = 2
	// ChannelError carries a fatal error message. Receiving one
	// terminates the transfer on the client side
	ChannelError Channel = 3
)

// maxChunkSize is the amount of data that fits in a single
// multiplexed packet: the pkt-line payload cap minus the channel byte
const maxChunkSize = pktline.MaxPayloadSize - 1

// Mux writes multiplexed side-band packets to an underlying stream.
//
// Large writes are transparently chunked so each packet stays within
// the pkt-line size cap. A Mux is not safe for concurrent use: the
// relative order of pack and progress packets is part of the protocol
// and must be controlled by a single writer
type Mux struct {
	w *pktline.Writer
}

// NewMux returns a Mux writing to w
func NewMux(w io.Writer) *Mux {
	return &Mux{w: pktline.NewWriter(w)}
}

// Write sends p on the pack-data channel, chunking as needed.
// It implements io.Writer so a pack generator can stream straight
// into the multiplexer
func (m *Mux) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		chunk := p
		if len(chunk) > maxChunkSize {
			chunk = chunk[:maxChunkSize]
		}
		if err := m.send(ChannelPack, chunk); err != nil {
			return total, err
		}
		total += len(chunk)
		p = p[len(chunk):]
	}
	return total, nil
}

// WriteProgress sends a human-readable message on the progress
// channel
func (m *Mux) WriteProgress(msg string) error {
	return m.send(ChannelProgress, []byte(msg))
}

// WriteError sends a fatal error message on the error channel.
// The caller is expected to close the stream right after
func (m *Mux) WriteError(msg string) error {
	return m.send(ChannelError, []byte(msg))
}

// Flush sends a flush-pkt, marking the end of the multiplexed stream
func (m *Mux) Flush() error {
	return m.w.Flush()
}

func (m *Mux) send(ch Channel, data []byte) error {
	buf := make([]byte, 0, len(data)+1)
	buf = append(buf, byte(ch))
	buf = append(buf, data...)
	if _, err := m.w.Write(buf); err != nil {
		return xerrors.Errorf("could not write side-band packet on channel %d: %w", ch, err)
	}
	return nil
}

// DemuxResult contains a demultiplexed side-band stream
type DemuxResult struct {
	// Pack is the concatenation of every pack-data chunk
	Pack []byte
	// Progress contains the progress messages, in order
	Progress []string
	// Errors contains the error messages, in order. The protocol
	// only ever sends one but a misbehaving server could send more
	Errors []string
}

// Demux reads a multiplexed stream until its flush-pkt (or EOF) and
// splits it back into its channels.
// This is the client-side inverse of Mux, mostly useful in tests
func Demux(r io.Reader) (*DemuxResult, error) {
	res := &DemuxResult{}
	pktr := pktline.NewReader(r)
	for {
		pkt, err := pktr.ReadPacket()
		if err == io.EOF {
			return res, nil
		}
		if err != nil {
			return nil, xerrors.Errorf("could not read side-band packet: %w", err)
		}
		if pkt.Kind == pktline.KindFlush {
			return res, nil
		}
		if len(pkt.Payload) == 0 {
			return nil, xerrors.Errorf("empty side-band packet: %w", ErrMalformedLine)
		}
		data := pkt.Payload[1:]
		switch Channel(pkt.Payload[0]) {
		case ChannelPack:
			res.Pack = append(res.Pack, data...)
		case ChannelProgress:
			res.Progress = append(res.Progress, string(data))
		case ChannelError:
			res.Errors = append(res.Errors, string(data))
		default:
			return nil, xerrors.Errorf("channel %d: %w", pkt.Payload[0], ErrUnknownChannel)
		}
	}
}
