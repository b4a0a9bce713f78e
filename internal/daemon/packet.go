package daemon

import (
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/jmakovicka/nfblock/internal/blocklist"
	"github.com/jmakovicka/nfblock/internal/classifier"
)

// copyRange is how much of each packet the kernel hands over: enough for an
// IPv4 header with options.
const copyRange = 60

// decodePacket extracts the IPv4 addresses of a queued payload. The payload
// may be cut short by the copy range.
func decodePacket(id uint32, hook uint8, payload []byte) (QueuedPacket, error) {
	var ip4 layers.IPv4
	if err := ip4.DecodeFromBytes(payload, gopacket.NilDecodeFeedback); err != nil {
		return QueuedPacket{}, fmt.Errorf("decoding IPv4 header: %w", err)
	}
	if ip4.Version != 4 {
		return QueuedPacket{}, fmt.Errorf("not an IPv4 packet (version %d)", ip4.Version)
	}
	src, dst := ip4.SrcIP.To4(), ip4.DstIP.To4()
	if src == nil || dst == nil {
		return QueuedPacket{}, fmt.Errorf("missing IPv4 addresses")
	}

	return QueuedPacket{
		ID: id,
		Packet: classifier.Packet{
			Hook: classifier.Hook(hook),
			Src:  blocklist.IPFromBytes(src),
			Dst:  blocklist.IPFromBytes(dst),
		},
	}, nil
}
