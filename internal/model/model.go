package model

import (
	"net"
	"time"
)

// FiveTuple represents the 5-tuple of a network packet.
type FiveTuple struct {
	SrcIP    net.IP
	DstIP    net.IP
	SrcPort  uint16
	DstPort  uint16
	Protocol uint8
}

// PacketInfo holds what the pipeline needs from a single captured packet.
type PacketInfo struct {
	Timestamp time.Time
	FiveTuple FiveTuple
	Length    int
	// IPPayload is everything after the IP header: transport header plus application data.
	IPPayload []byte
	// AppPayloadLen is the number of application bytes carried after the transport header.
	AppPayloadLen int
}

// Qualifies reports whether the packet carries an IP payload with non-empty application data.
func (p *PacketInfo) Qualifies() bool {
	return len(p.IPPayload) > 0 && p.AppPayloadLen > 0
}

// LabeledFlow joins a capture file to its ground-truth label.
type LabeledFlow struct {
	FlowFileName string
	Label        string
	NumPackets   int
}

// FeatureRow is one sampled packet: its label and raw IP payload bytes.
// Rows are never mutated once written.
type FeatureRow struct {
	Label string
	Bytes []byte
}
