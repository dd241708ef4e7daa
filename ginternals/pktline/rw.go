package pktline

import (
	"io"

	"golang.org/x/xerrors"
)

// A Writer writes pkt-line records to an underlying writer
type Writer struct {
	w io.Writer
}

// NewWriter creates a new Writer writing to w
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write frames p as a single pkt-line record.
// ErrTooLong is returned if p exceeds MaxPayloadSize
func (w *Writer) Write(p []byte) (int, error) {
	data, err := Encode(p)
	if err != nil {
		return 0, err
	}
	if _, err := w.w.Write(data); err != nil {
		return 0, xerrors.Errorf("could not write pkt-line: %w", err)
	}
	return len(p), nil
}

// WriteString frames s as a single pkt-line record.
// It behaves like Write
func (w *Writer) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

// WritePacket writes the given packet, whatever its kind
func (w *Writer) WritePacket(pkt Packet) error {
	var data []byte
	var err error
	switch pkt.Kind {
	case KindFlush:
		data = []byte("0000")
	case KindDelimiter:
		data = []byte("0001")
	case KindResponseEnd:
		data = []byte("0002")
	case KindData:
		data, err = Encode(pkt.Payload)
		if err != nil {
			return err
		}
	}
	if _, err := w.w.Write(data); err != nil {
		return xerrors.Errorf("could not write %s packet: %w", pkt.Kind, err)
	}
	return nil
}

// Flush sends a flush-pkt to the underlying writer
func (w *Writer) Flush() error {
	return w.WritePacket(Flush())
}

// A Reader reads pkt-line records from an underlying reader.
// Unlike Decode, a Reader blocks until a full record is available,
// so it's meant for stateful transports (ssh, local pipes)
type Reader struct {
	r io.Reader
}

// NewReader creates a new Reader reading from r
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// ReadPacket reads the next pkt-line from the stream.
// io.EOF is returned when the underlying stream is done
func (r *Reader) ReadPacket() (Packet, error) {
	var prefix [LenSize]byte
	if _, err := io.ReadFull(r.r, prefix[:]); err != nil {
		if err == io.EOF {
			return Packet{}, io.EOF
		}
		return Packet{}, xerrors.Errorf("could not read pkt-line length: %w", err)
	}

	length, err := parseLength(prefix[:])
	if err != nil {
		return Packet{}, err
	}

	switch length {
	case 0:
		return Flush(), nil
	case 1:
		return Delimiter(), nil
	case 2:
		return ResponseEnd(), nil
	}

	payload := make([]byte, length-LenSize)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		return Packet{}, xerrors.Errorf("could not read pkt-line payload: %w", err)
	}
	return Data(payload), nil
}
