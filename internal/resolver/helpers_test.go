package resolver_test

import (
	"net"
	"testing"

	"github.com/jroosing/hydradns/internal/dnsmsg"
)

func queryPacket(name string, qtype dnsmsg.RecordType) dnsmsg.Packet {
	return dnsmsg.Packet{
		Header:    dnsmsg.Header{ID: 1, Flags: dnsmsg.RDFlag},
		Questions: []dnsmsg.Question{{Name: name, Type: uint16(qtype), Class: uint16(dnsmsg.ClassIN)}},
	}
}

func positiveAResponse(t *testing.T, name string, ip net.IP, ttl uint32) []byte {
	t.Helper()
	pkt := dnsmsg.Packet{
		Header:    dnsmsg.Header{ID: 1, Flags: dnsmsg.QRFlag | dnsmsg.RDFlag | dnsmsg.RAFlag},
		Questions: []dnsmsg.Question{{Name: name, Type: uint16(dnsmsg.TypeA), Class: uint16(dnsmsg.ClassIN)}},
		Answers:   []dnsmsg.Record{dnsmsg.NewIPRecord(dnsmsg.NewRRHeader(name, dnsmsg.ClassIN, ttl), ip)},
	}
	wire, err := pkt.Marshal()
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	return wire
}

func nxdomainResponse(t *testing.T, name string) []byte {
	t.Helper()
	req := queryPacket(name, dnsmsg.TypeA)
	resp := dnsmsg.BuildErrorResponse(req, uint16(dnsmsg.RCodeNXDomain))
	wire, err := resp.Marshal()
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	return wire
}
