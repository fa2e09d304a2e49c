// Package session groups captured packets into bidirectional flows.
package session

import (
	"bytes"
	"fmt"
	"net"

	"github.com/google/gopacket"

	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/engine/protocol"
	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/model"
)

// Endpoint is one side of a conversation.
type Endpoint struct {
	IP   [16]byte
	Port uint16
}

func newEndpoint(ip net.IP, port uint16) Endpoint {
	var e Endpoint
	copy(e.IP[:], ip.To16())
	e.Port = port
	return e
}

func (e Endpoint) less(o Endpoint) bool {
	if c := bytes.Compare(e.IP[:], o.IP[:]); c != 0 {
		return c < 0
	}
	return e.Port < o.Port
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d", net.IP(e.IP[:]).String(), e.Port)
}

// Key identifies a session independently of packet direction: A is always
// the lower endpoint.
type Key struct {
	A        Endpoint
	B        Endpoint
	Protocol uint8
}

// NewKey derives the canonical key for a five-tuple.
func NewKey(ft model.FiveTuple) Key {
	a := newEndpoint(ft.SrcIP, ft.SrcPort)
	b := newEndpoint(ft.DstIP, ft.DstPort)
	if b.less(a) {
		a, b = b, a
	}
	return Key{A: a, B: b, Protocol: ft.Protocol}
}

func (k Key) String() string {
	return fmt.Sprintf("%s<->%s/%d", k.A, k.B, k.Protocol)
}

// Session is the ordered list of packets sharing a Key.
type Session struct {
	Key     Key
	Packets []*model.PacketInfo
}

// Stats counts packets at the capture level.
type Stats struct {
	Total      int
	IP         int
	Qualifying int
}

// Table holds the sessions of one capture in first-appearance order.
type Table struct {
	sessions []*Session
	index    map[Key]int
	Stats    Stats
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{index: make(map[Key]int)}
}

// Reconstruct groups decoded packets into sessions. Packets without an IP
// header are counted and dropped.
func Reconstruct(packets []gopacket.Packet, opts protocol.Options) *Table {
	table := NewTable()
	for _, packet := range packets {
		table.Stats.Total++
		info, err := protocol.ParsePacket(packet, opts)
		if err != nil {
			continue
		}
		table.Add(info)
	}
	return table
}

// Add appends an IP packet to its session, creating the session on first sight.
func (t *Table) Add(info *model.PacketInfo) {
	t.Stats.IP++
	if info.Qualifies() {
		t.Stats.Qualifying++
	}

	key := NewKey(info.FiveTuple)
	if i, ok := t.index[key]; ok {
		t.sessions[i].Packets = append(t.sessions[i].Packets, info)
		return
	}
	t.index[key] = len(t.sessions)
	t.sessions = append(t.sessions, &Session{Key: key, Packets: []*model.PacketInfo{info}})
}

// Sessions returns the sessions in the order their first packet appeared.
func (t *Table) Sessions() []*Session {
	return t.sessions
}

// Lookup returns the session for key.
func (t *Table) Lookup(key Key) (*Session, bool) {
	i, ok := t.index[key]
	if !ok {
		return nil, false
	}
	return t.sessions[i], true
}

// Len returns the number of sessions.
func (t *Table) Len() int {
	return len(t.sessions)
}
