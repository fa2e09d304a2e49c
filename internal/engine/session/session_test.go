package session

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/engine/protocol"
	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/model"
	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/pcaptest"
)

func decodeAll(t *testing.T, pkts []pcaptest.Packet) []gopacket.Packet {
	t.Helper()
	out := make([]gopacket.Packet, 0, len(pkts))
	for _, p := range pkts {
		frame, err := pcaptest.Frame(p)
		require.NoError(t, err)
		out = append(out, gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.Default))
	}
	return out
}

func TestNewKey_Symmetric(t *testing.T) {
	forward := model.FiveTuple{
		SrcIP: net.ParseIP("10.2.83.121"), DstIP: net.ParseIP("5.62.53.224"),
		SrcPort: 41957, DstPort: 80, Protocol: 6,
	}
	backward := model.FiveTuple{
		SrcIP: forward.DstIP, DstIP: forward.SrcIP,
		SrcPort: forward.DstPort, DstPort: forward.SrcPort, Protocol: 6,
	}

	assert.Equal(t, NewKey(forward), NewKey(backward))

	udp := forward
	udp.Protocol = 17
	assert.NotEqual(t, NewKey(forward), NewKey(udp), "protocol is part of the session identity")
}

func TestReconstruct_GroupsBothDirections(t *testing.T) {
	flowA := pcaptest.Flow(4, 10)
	other := pcaptest.Packet{SrcIP: "10.0.0.9", DstIP: "1.1.1.1", SrcPort: 5000, DstPort: 53, UDP: true, Payload: []byte{1, 2, 3}}

	// Interleave: A, other, A, A, reversed other, A
	pkts := []pcaptest.Packet{flowA[0], other, flowA[1], flowA[2], other.Reverse(), flowA[3]}
	table := Reconstruct(decodeAll(t, pkts), protocol.Options{})

	require.Equal(t, 2, table.Len())
	sessions := table.Sessions()
	assert.Len(t, sessions[0].Packets, 4, "first-appearing session holds flow A")
	assert.Len(t, sessions[1].Packets, 2)

	// Packets keep capture order within the session.
	for i, info := range sessions[0].Packets {
		assert.Equal(t, byte(i), info.IPPayload[20], "packet %d out of order", i)
	}

	assert.Equal(t, Stats{Total: 6, IP: 6, Qualifying: 6}, table.Stats)
}

func TestReconstruct_SwappedTuplesYieldSameGrouping(t *testing.T) {
	pkts := pcaptest.Flow(6, 8)
	swapped := make([]pcaptest.Packet, len(pkts))
	for i, p := range pkts {
		swapped[i] = p.Reverse()
	}

	a := Reconstruct(decodeAll(t, pkts), protocol.Options{})
	b := Reconstruct(decodeAll(t, swapped), protocol.Options{})

	require.Equal(t, a.Len(), b.Len())
	for i := range a.Sessions() {
		assert.Equal(t, a.Sessions()[i].Key, b.Sessions()[i].Key)
		assert.Equal(t, len(a.Sessions()[i].Packets), len(b.Sessions()[i].Packets))
	}
	_, ok := b.Lookup(a.Sessions()[0].Key)
	assert.True(t, ok)
}

func TestReconstruct_CountsExcludedPackets(t *testing.T) {
	arp, err := pcaptest.ARPFrame()
	require.NoError(t, err)
	pkts := decodeAll(t, []pcaptest.Packet{
		{SrcIP: "10.0.0.1", DstIP: "10.0.0.2", SrcPort: 1, DstPort: 2},
		{SrcIP: "10.0.0.1", DstIP: "10.0.0.2", SrcPort: 1, DstPort: 2, Payload: []byte("hi")},
	})
	pkts = append(pkts, gopacket.NewPacket(arp, layers.LayerTypeEthernet, gopacket.Default))

	table := Reconstruct(pkts, protocol.Options{})

	assert.Equal(t, Stats{Total: 3, IP: 2, Qualifying: 1}, table.Stats)
	assert.Equal(t, 1, table.Len())
}
