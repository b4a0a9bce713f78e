package blocklist

import (
	"encoding/binary"
	"fmt"
	"net/netip"
)

// FormatIP renders a host-order IPv4 address in dotted form.
func FormatIP(ip uint32) string {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], ip)
	return netip.AddrFrom4(b).String()
}

// ParseIP parses a dotted IPv4 address into host order.
func ParseIP(s string) (uint32, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return 0, err
	}
	if !addr.Is4() {
		return 0, fmt.Errorf("not an IPv4 address: %s", s)
	}
	b := addr.As4()
	return binary.BigEndian.Uint32(b[:]), nil
}

// IPFromBytes converts a 4-byte network-order address.
func IPFromBytes(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}

func assembleIP(o [4]int) uint32 {
	return uint32(o[0])<<24 | uint32(o[1])<<16 | uint32(o[2])<<8 | uint32(o[3])
}
