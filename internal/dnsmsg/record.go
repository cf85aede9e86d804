package dnsmsg

import (
	"encoding/binary"
	"fmt"
)

// RRHeader holds the fields shared by every resource record: owner name,
// class, and TTL. Type is not part of the header — it lives on the
// concrete Record implementation, since for some records (IPRecord) it is
// derived rather than stored.
type RRHeader struct {
	Name  string
	Class uint16
	TTL   uint32
}

// NewRRHeader builds an RRHeader for the given owner name, class, and TTL.
func NewRRHeader(name string, class RecordClass, ttl uint32) RRHeader {
	return RRHeader{Name: name, Class: uint16(class), TTL: ttl}
}

// Record is satisfied by every concrete resource-record type (IPRecord,
// NameRecord, OpaqueRecord). Go has no tagged-union sum type, so callers
// needing record-specific fields type-switch/assert to a concrete type
// (see ExtractOPT asserting *OpaqueRecord).
type Record interface {
	Type() RecordType
	Header() RRHeader
	SetHeader(RRHeader)
	MarshalRData() ([]byte, error)
}

// ParseRecord reads one resource record (RFC 1035 §4.1.3): the owner name,
// the fixed TYPE/CLASS/TTL/RDLENGTH envelope, then RDATA dispatched by
// TYPE to the matching concrete Record implementation. A/AAAA get
// IPRecord, CNAME/NS/PTR/DNAME get NameRecord, everything else (MX, TXT,
// SOA, SRV, the DNSSEC types, SVCB/HTTPS, CAA, OPT, ...) is carried as an
// OpaqueRecord — this resolver forwards those types rather than
// constructing or inspecting them, so there is nothing a specific type
// would buy beyond what raw RDATA already gives the caller.
func ParseRecord(msg []byte, off *int) (Record, error) {
	name, err := DecodeName(msg, off)
	if err != nil {
		return nil, err
	}
	if *off+10 > len(msg) {
		return nil, fmt.Errorf("%w: unexpected EOF while reading DNS record", ErrDNSError)
	}
	rrType := RecordType(binary.BigEndian.Uint16(msg[*off : *off+2]))
	rrClass := binary.BigEndian.Uint16(msg[*off+2 : *off+4])
	ttl := binary.BigEndian.Uint32(msg[*off+4 : *off+8])
	rdlen := int(binary.BigEndian.Uint16(msg[*off+8 : *off+10]))
	*off += 10
	start := *off
	if start+rdlen > len(msg) {
		return nil, fmt.Errorf("%w: unexpected EOF while reading DNS record rdata", ErrDNSError)
	}

	header := RRHeader{Name: name, Class: rrClass, TTL: ttl}

	var rec Record
	switch rrType {
	case TypeA, TypeAAAA:
		rec, err = ParseIPRData(msg, off, rdlen)
	case TypeCNAME, TypeNS, TypePTR, TypeDNAME:
		rec, err = ParseNameRData(msg, off, start, rdlen, rrType)
	default:
		rec, err = ParseOpaqueRData(msg, off, rdlen, rrType)
	}
	if err != nil {
		return nil, err
	}
	rec.SetHeader(header)
	return rec, nil
}

// MarshalRecord serializes a Record to wire format: owner name, the fixed
// TYPE/CLASS/TTL/RDLENGTH envelope, then RDATA from MarshalRData. OPT
// pseudo-records (RFC 6891) always use the root name, regardless of
// Header().Name.
func MarshalRecord(rr Record) ([]byte, error) {
	nameWire := []byte{0}
	if rr.Type() != TypeOPT {
		b, err := EncodeName(rr.Header().Name)
		if err != nil {
			return nil, err
		}
		nameWire = b
	}

	rdata, err := rr.MarshalRData()
	if err != nil {
		return nil, err
	}

	h := rr.Header()
	out := make([]byte, 0, len(nameWire)+10+len(rdata))
	out = append(out, nameWire...)
	fixed := make([]byte, 10)
	binary.BigEndian.PutUint16(fixed[0:2], uint16(rr.Type()))
	binary.BigEndian.PutUint16(fixed[2:4], h.Class)
	binary.BigEndian.PutUint32(fixed[4:8], h.TTL)
	binary.BigEndian.PutUint16(fixed[8:10], uint16(len(rdata)))
	out = append(out, fixed...)
	out = append(out, rdata...)
	return out, nil
}
