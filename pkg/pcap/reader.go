package pcap

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

var ngMagic = []byte{0x0A, 0x0D, 0x0D, 0x0A}

// ReadError reports a capture file that is missing or malformed.
// Callers skip the file and continue with the rest of the batch.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("capture read error for '%s': %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

type packetSource interface {
	gopacket.PacketDataSource
	LinkType() layers.LinkType
}

// Reader reads packets from a pcap or pcapng file.
type Reader struct {
	path   string
	file   *os.File
	source packetSource
}

// NewReader opens the capture at filePath, detecting pcapng by its magic number.
func NewReader(filePath string) (*Reader, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, &ReadError{Path: filePath, Err: err}
	}

	br := bufio.NewReader(file)
	magic, err := br.Peek(4)
	if err != nil {
		file.Close()
		return nil, &ReadError{Path: filePath, Err: fmt.Errorf("failed to read capture header: %w", err)}
	}

	var source packetSource
	if bytes.Equal(magic, ngMagic) {
		source, err = pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	} else {
		source, err = pcapgo.NewReader(br)
	}
	if err != nil {
		file.Close()
		return nil, &ReadError{Path: filePath, Err: err}
	}

	return &Reader{path: filePath, file: file, source: source}, nil
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}

// ReadAll decodes every packet in capture order. A truncated or corrupt
// record fails the whole read.
func (r *Reader) ReadAll() ([]gopacket.Packet, error) {
	packetSource := gopacket.NewPacketSource(r.source, r.source.LinkType())
	var packets []gopacket.Packet
	for {
		packet, err := packetSource.NextPacket()
		if errors.Is(err, io.EOF) {
			return packets, nil
		}
		if err != nil {
			return nil, &ReadError{Path: r.path, Err: err}
		}
		packets = append(packets, packet)
	}
}

// ReadFile opens, fully reads and closes a capture file.
func ReadFile(filePath string) ([]gopacket.Packet, error) {
	reader, err := NewReader(filePath)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return reader.ReadAll()
}
