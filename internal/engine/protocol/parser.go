package protocol

import (
	"errors"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/model"
)

// ErrNotIP is returned for packets without a usable network-layer header.
var ErrNotIP = errors.New("not an IP packet")

// Options controls which network layers the parser accepts.
type Options struct {
	IncludeIPv6 bool
}

// ParsePacket decodes the layers of a captured packet and extracts the five-tuple,
// the IP payload and the length of the application data carried in it.
func ParsePacket(packet gopacket.Packet, opts Options) (*model.PacketInfo, error) {
	info := &model.PacketInfo{
		Length: len(packet.Data()),
	}
	if meta := packet.Metadata(); meta != nil {
		info.Timestamp = meta.Timestamp
	}

	var fiveTuple model.FiveTuple

	if l := packet.Layer(layers.LayerTypeIPv4); l != nil {
		ip := l.(*layers.IPv4)
		fiveTuple.SrcIP = ip.SrcIP
		fiveTuple.DstIP = ip.DstIP
		fiveTuple.Protocol = uint8(ip.Protocol)
		info.IPPayload = ip.Payload
	} else if l := packet.Layer(layers.LayerTypeIPv6); l != nil && opts.IncludeIPv6 {
		ip := l.(*layers.IPv6)
		fiveTuple.SrcIP = ip.SrcIP
		fiveTuple.DstIP = ip.DstIP
		fiveTuple.Protocol = uint8(ip.NextHeader)
		info.IPPayload = ip.Payload
	} else {
		return nil, ErrNotIP
	}

	switch t := packet.TransportLayer().(type) {
	case *layers.TCP:
		fiveTuple.SrcPort = uint16(t.SrcPort)
		fiveTuple.DstPort = uint16(t.DstPort)
		info.AppPayloadLen = len(t.Payload)
	case *layers.UDP:
		fiveTuple.SrcPort = uint16(t.SrcPort)
		fiveTuple.DstPort = uint16(t.DstPort)
		info.AppPayloadLen = len(t.Payload)
	case nil:
		// ICMP and friends: whatever follows the last decoded layer is application data.
		if app := packet.ApplicationLayer(); app != nil {
			info.AppPayloadLen = len(app.LayerContents())
		}
	default:
		info.AppPayloadLen = len(t.LayerPayload())
	}

	info.FiveTuple = fiveTuple
	return info, nil
}
