package dnsmsg

import (
	"crypto/rand"
	"encoding/binary"
)

// BuildQuery constructs the wire bytes for a standard recursive query for
// domain/qtype, with the RD flag set and, when dnssecOK is true, an EDNS0
// OPT record advertising EDNSDefaultUDPPayloadSize with the DO flag set.
// The query ID is drawn from crypto/rand (RFC 5452 recommends
// unpredictable IDs against cache-poisoning/spoofing).
func BuildQuery(domain string, qtype RecordType, dnssecOK bool) []byte {
	pkt := Packet{
		Header: Header{ID: newQueryID(), Flags: RDFlag},
		Questions: []Question{
			{Name: domain, Type: uint16(qtype), Class: uint16(ClassIN)},
		},
	}

	wire, err := pkt.Marshal()
	if err != nil {
		return nil
	}
	if !dnssecOK {
		return wire
	}

	opt := CreateOPT(EDNSDefaultUDPPayloadSize)
	opt.DNSSECOk = true
	return appendOPT(wire, opt)
}

// appendOPT appends an OPT additional record to already-marshaled request
// bytes and bumps ARCOUNT, mirroring AddEDNSToRequestBytes's wire surgery.
func appendOPT(reqBytes []byte, opt OPTRecord) []byte {
	if len(reqBytes) < HeaderSize {
		return reqBytes
	}
	ar := binary.BigEndian.Uint16(reqBytes[10:12])
	if ar < 65535 {
		ar++
	}
	optBytes := opt.Marshal()
	out := make([]byte, 0, len(reqBytes)+len(optBytes))
	out = append(out, reqBytes...)
	binary.BigEndian.PutUint16(out[10:12], ar)
	out = append(out, optBytes...)
	return out
}

func newQueryID() uint16 {
	var b [2]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	return binary.BigEndian.Uint16(b[:])
}
