package protocol

import (
	"errors"
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/pcaptest"
)

func decode(t *testing.T, p pcaptest.Packet) gopacket.Packet {
	t.Helper()
	frame, err := pcaptest.Frame(p)
	require.NoError(t, err)
	return gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.Default)
}

func TestParsePacket_TCP(t *testing.T) {
	payload := pcaptest.Payload(100, 7)
	packet := decode(t, pcaptest.Packet{
		SrcIP: "192.168.0.1", DstIP: "8.8.8.8", SrcPort: 12345, DstPort: 443, Payload: payload,
	})

	info, err := ParsePacket(packet, Options{})
	require.NoError(t, err)

	assert.True(t, info.FiveTuple.SrcIP.Equal(net.ParseIP("192.168.0.1")))
	assert.True(t, info.FiveTuple.DstIP.Equal(net.ParseIP("8.8.8.8")))
	assert.Equal(t, uint16(12345), info.FiveTuple.SrcPort)
	assert.Equal(t, uint16(443), info.FiveTuple.DstPort)
	assert.Equal(t, uint8(layers.IPProtocolTCP), info.FiveTuple.Protocol)

	// The IP payload starts with the 20-byte TCP header and ends with the application bytes.
	require.Len(t, info.IPPayload, 20+len(payload))
	assert.Equal(t, payload, info.IPPayload[20:])
	assert.Equal(t, len(payload), info.AppPayloadLen)
	assert.True(t, info.Qualifies())
}

func TestParsePacket_UDP(t *testing.T) {
	payload := pcaptest.Payload(32, 1)
	packet := decode(t, pcaptest.Packet{
		SrcIP: "10.0.0.1", DstIP: "10.0.0.2", SrcPort: 5353, DstPort: 9999, UDP: true, Payload: payload,
	})

	info, err := ParsePacket(packet, Options{})
	require.NoError(t, err)

	assert.Equal(t, uint8(layers.IPProtocolUDP), info.FiveTuple.Protocol)
	assert.Len(t, info.IPPayload, 8+len(payload))
	assert.Equal(t, len(payload), info.AppPayloadLen)
}

func TestParsePacket_EmptyPayloadDoesNotQualify(t *testing.T) {
	packet := decode(t, pcaptest.Packet{SrcIP: "10.0.0.1", DstIP: "10.0.0.2", SrcPort: 1, DstPort: 2})

	info, err := ParsePacket(packet, Options{})
	require.NoError(t, err)

	// Ethernet padding must not leak into the IP payload.
	assert.Len(t, info.IPPayload, 20)
	assert.Zero(t, info.AppPayloadLen)
	assert.False(t, info.Qualifies())
}

func TestParsePacket_NonIP(t *testing.T) {
	frame, err := pcaptest.ARPFrame()
	require.NoError(t, err)
	packet := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.Default)

	_, err = ParsePacket(packet, Options{})
	assert.True(t, errors.Is(err, ErrNotIP))
}

func TestParsePacket_IPv6(t *testing.T) {
	payload := pcaptest.Payload(24, 3)
	packet := decode(t, pcaptest.Packet{
		SrcIP: "2001:db8::1", DstIP: "2001:db8::2", SrcPort: 40000, DstPort: 443, Payload: payload,
	})

	// 1. IPv6 is ignored unless explicitly enabled.
	_, err := ParsePacket(packet, Options{})
	assert.True(t, errors.Is(err, ErrNotIP))

	// 2. Enabled, the packet parses like its IPv4 counterpart.
	info, err := ParsePacket(packet, Options{IncludeIPv6: true})
	require.NoError(t, err)
	assert.True(t, info.FiveTuple.SrcIP.Equal(net.ParseIP("2001:db8::1")))
	assert.Equal(t, uint16(443), info.FiveTuple.DstPort)
	assert.Equal(t, uint8(layers.IPProtocolTCP), info.FiveTuple.Protocol)
	require.Len(t, info.IPPayload, 20+len(payload))
	assert.Equal(t, payload, info.IPPayload[20:])
	assert.True(t, info.Qualifies())
}
