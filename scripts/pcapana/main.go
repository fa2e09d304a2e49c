package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/engine/protocol"
	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/engine/session"
	"github.com/Chiratidzo/EncrypytedTrafficClassifier/pkg/pcap"
)

func main() {
	ipv6 := flag.Bool("ipv6", false, "include IPv6 packets")
	show := flag.Int("n", 5, "packets printed per session")
	flag.Parse()
	if flag.NArg() < 1 {
		fmt.Println("Usage: go run ./scripts/pcapana [-ipv6] [-n 5] <path_to_pcap_file>")
		os.Exit(1)
	}

	packets, err := pcap.ReadFile(flag.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	table := session.Reconstruct(packets, protocol.Options{IncludeIPv6: *ipv6})
	fmt.Printf("packets=%d ip=%d qualifying=%d sessions=%d\n",
		table.Stats.Total, table.Stats.IP, table.Stats.Qualifying, table.Len())

	for _, s := range table.Sessions() {
		qualifying := 0
		for _, info := range s.Packets {
			if info.Qualifies() {
				qualifying++
			}
		}
		fmt.Printf("==== %s packets=%d qualifying=%d ====\n", s.Key, len(s.Packets), qualifying)
		for i, info := range s.Packets {
			if i >= *show {
				break
			}
			fmt.Printf("[%s] %s:%d -> %s:%d len=%d ip_payload=%d app=%d\n",
				info.Timestamp.Format("15:04:05.000"),
				info.FiveTuple.SrcIP, info.FiveTuple.SrcPort,
				info.FiveTuple.DstIP, info.FiveTuple.DstPort,
				info.Length, len(info.IPPayload), info.AppPayloadLen,
			)
		}
	}
}
