// Package pcaptest synthesises capture files for tests and smoke runs.
package pcaptest

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Base is the timestamp of the first synthesised frame.
var Base = time.Date(2019, 5, 20, 12, 0, 0, 0, time.UTC)

// Packet describes one packet to synthesise. Addresses that are not IPv4
// produce an IPv6 frame.
type Packet struct {
	SrcIP   string
	DstIP   string
	SrcPort uint16
	DstPort uint16
	UDP     bool
	Payload []byte
}

// Reverse returns the same packet travelling in the opposite direction.
func (p Packet) Reverse() Packet {
	p.SrcIP, p.DstIP = p.DstIP, p.SrcIP
	p.SrcPort, p.DstPort = p.DstPort, p.SrcPort
	return p
}

// network builds the IPv4 or IPv6 header for p.
func network(p Packet, proto layers.IPProtocol) (gopacket.NetworkLayer, layers.EthernetType, error) {
	src, dst := net.ParseIP(p.SrcIP), net.ParseIP(p.DstIP)
	if src == nil || dst == nil {
		return nil, 0, fmt.Errorf("invalid IP address in %s -> %s", p.SrcIP, p.DstIP)
	}
	if src.To4() != nil && dst.To4() != nil {
		ip := &layers.IPv4{SrcIP: src.To4(), DstIP: dst.To4(), Version: 4, TTL: 64, Protocol: proto}
		return ip, layers.EthernetTypeIPv4, nil
	}
	ip := &layers.IPv6{SrcIP: src.To16(), DstIP: dst.To16(), Version: 6, HopLimit: 64, NextHeader: proto}
	return ip, layers.EthernetTypeIPv6, nil
}

// Frame serialises p as an Ethernet/IP/TCP-or-UDP frame.
func Frame(p Packet) ([]byte, error) {
	proto := layers.IPProtocolTCP
	if p.UDP {
		proto = layers.IPProtocolUDP
	}
	ip, ethType, err := network(p, proto)
	if err != nil {
		return nil, err
	}
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA},
		EthernetType: ethType,
	}

	var transport gopacket.SerializableLayer
	if p.UDP {
		udp := &layers.UDP{SrcPort: layers.UDPPort(p.SrcPort), DstPort: layers.UDPPort(p.DstPort)}
		if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
			return nil, err
		}
		transport = udp
	} else {
		tcp := &layers.TCP{
			SrcPort: layers.TCPPort(p.SrcPort),
			DstPort: layers.TCPPort(p.DstPort),
			Seq:     1000,
			ACK:     true,
			PSH:     len(p.Payload) > 0,
			Window:  14600,
		}
		if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
			return nil, err
		}
		transport = tcp
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip.(gopacket.SerializableLayer), transport, gopacket.Payload(p.Payload)); err != nil {
		return nil, fmt.Errorf("failed to serialize layers: %w", err)
	}
	return buf.Bytes(), nil
}

// ARPFrame returns a non-IP frame.
func ARPFrame() ([]byte, error) {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       layers.EthernetBroadcast,
		EthernetType: layers.EthernetTypeARP,
	}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		SourceProtAddress: []byte{10, 0, 0, 1},
		DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
		DstProtAddress:    []byte{10, 0, 0, 2},
	}
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, eth, arp); err != nil {
		return nil, fmt.Errorf("failed to serialize arp: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteFrames writes raw Ethernet frames to a classic pcap file, one millisecond apart.
func WriteFrames(path string, frames [][]byte) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create capture file: %w", err)
	}
	defer f.Close()

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		return fmt.Errorf("failed to write pcap header: %w", err)
	}
	for i, frame := range frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     Base.Add(time.Duration(i) * time.Millisecond),
			CaptureLength: len(frame),
			Length:        len(frame),
		}
		if err := w.WritePacket(ci, frame); err != nil {
			return fmt.Errorf("failed to write packet %d: %w", i, err)
		}
	}
	return nil
}

func frames(packets []Packet) ([][]byte, error) {
	out := make([][]byte, 0, len(packets))
	for _, p := range packets {
		frame, err := Frame(p)
		if err != nil {
			return nil, err
		}
		out = append(out, frame)
	}
	return out, nil
}

// WriteFile serialises packets and writes them to a classic pcap file.
func WriteFile(path string, packets []Packet) error {
	fs, err := frames(packets)
	if err != nil {
		return err
	}
	return WriteFrames(path, fs)
}

// WriteNgFile serialises packets and writes them to a pcapng file.
func WriteNgFile(path string, packets []Packet) error {
	fs, err := frames(packets)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create capture file: %w", err)
	}
	defer f.Close()

	w, err := pcapgo.NewNgWriter(f, layers.LinkTypeEthernet)
	if err != nil {
		return fmt.Errorf("failed to write pcapng header: %w", err)
	}
	for i, frame := range fs {
		ci := gopacket.CaptureInfo{
			Timestamp:     Base.Add(time.Duration(i) * time.Millisecond),
			CaptureLength: len(frame),
			Length:        len(frame),
		}
		if err := w.WritePacket(ci, frame); err != nil {
			return fmt.Errorf("failed to write packet %d: %w", i, err)
		}
	}
	return w.Flush()
}

// Flow returns n TCP packets of one conversation alternating direction,
// each carrying payloadLen bytes filled with the packet index.
func Flow(n, payloadLen int) []Packet {
	base := Packet{SrcIP: "10.2.10.130", DstIP: "216.58.223.74", SrcPort: 48239, DstPort: 443}
	packets := make([]Packet, n)
	for i := range packets {
		p := base
		if i%2 == 1 {
			p = base.Reverse()
		}
		p.Payload = Payload(payloadLen, byte(i))
		packets[i] = p
	}
	return packets
}

// Payload returns n bytes starting at seed and counting upwards.
func Payload(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = seed + byte(i)
	}
	return b
}
