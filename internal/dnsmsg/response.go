package dnsmsg

import "net"

// Response is the classified result of parsing an upstream answer: the
// fields a resolver/cache actually needs, plus the raw bytes for whatever
// the caller forwards or re-serves verbatim.
type Response struct {
	Addresses  []net.IP
	CNAMEChain []string
	RCode      RCode
	Truncated  bool

	// MinTTL is the lowest TTL across the answer section; zero-value with
	// HasMinTTL false means the answer section was empty.
	MinTTL    uint32
	HasMinTTL bool

	// SOAMinimum is min(SOA.Minimum, record TTL) from the first SOA record
	// found in the authority section, used as the negative-caching TTL
	// (RFC 2308). HasSOAMinimum is false when no SOA record is present.
	SOAMinimum    uint32
	HasSOAMinimum bool

	RawAnswers []Record
	RawBytes   []byte
}

// IsNoData reports whether the response is a positive NOERROR with no
// address or CNAME answers (RFC 2308 NODATA).
func (r Response) IsNoData() bool {
	return r.RCode == RCodeNoError && len(r.Addresses) == 0 && len(r.CNAMEChain) == 0
}

// IsNXDomain reports whether the response signals a non-existent domain.
func (r Response) IsNXDomain() bool {
	return r.RCode == RCodeNXDomain
}

// IsServerError reports whether the upstream failed to process the query
// (as opposed to answering authoritatively that the name doesn't exist).
func (r Response) IsServerError() bool {
	switch r.RCode {
	case RCodeServFail, RCodeRefused, RCodeNotImp:
		return true
	default:
		return false
	}
}

// ParseResponse parses and classifies a raw upstream DNS response: RCODE,
// truncation, A/AAAA addresses, the CNAME chain in answer order, the
// minimum answer TTL, and the negative-caching SOA minimum from the
// authority section.
func ParseResponse(wire []byte) (Response, error) {
	pkt, err := ParsePacket(wire)
	if err != nil {
		return Response{}, err
	}

	resp := Response{
		RCode:     RCodeFromFlags(pkt.Header.Flags),
		Truncated: (pkt.Header.Flags & TCFlag) != 0,
		RawBytes:  wire,
	}

	for _, rr := range pkt.Answers {
		ttl := rr.Header().TTL
		if !resp.HasMinTTL || ttl < resp.MinTTL {
			resp.MinTTL = ttl
			resp.HasMinTTL = true
		}

		switch rec := rr.(type) {
		case *IPRecord:
			resp.Addresses = append(resp.Addresses, rec.Addr)
		case *NameRecord:
			if rec.Type() == TypeCNAME {
				resp.CNAMEChain = append(resp.CNAMEChain, rec.Target)
				continue
			}
			resp.RawAnswers = append(resp.RawAnswers, rr)
		default:
			resp.RawAnswers = append(resp.RawAnswers, rr)
		}
	}

	for _, rr := range pkt.Authorities {
		if rr.Type() != TypeSOA {
			continue
		}
		opaque, ok := rr.(*OpaqueRecord)
		if !ok {
			continue
		}
		data, ok := opaque.Data.([]byte)
		if !ok {
			continue
		}
		if min, ok := soaMinimum(data); ok {
			if min < rr.Header().TTL {
				resp.SOAMinimum = min
			} else {
				resp.SOAMinimum = rr.Header().TTL
			}
			resp.HasSOAMinimum = true
		}
		break
	}

	return resp, nil
}

// soaMinimum extracts the trailing 32-bit MINIMUM field from SOA RDATA
// (RFC 1035 §3.3.13: MNAME, RNAME, then five 32-bit fields, MINIMUM last).
func soaMinimum(rdata []byte) (uint32, bool) {
	if len(rdata) < 4 {
		return 0, false
	}
	b := rdata[len(rdata)-4:]
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), true
}
