package server

import (
	"context"
	"net"

	"github.com/jroosing/hydradns/internal/dnsmsg"
	"github.com/jroosing/hydradns/internal/filtering"
	"github.com/jroosing/hydradns/internal/resolver"
)

// filterLayer gates a query through a filtering.Engine before handing it to
// next: a blocked domain is answered locally (NXDOMAIN, empty NOERROR, or a
// configured sinkhole address) without ever reaching upstream.
type filterLayer struct {
	engine    *filtering.Engine
	l0        *filtering.L0Cache
	groupID   string
	blockType string // "nxdomain", "nodata", or "address"
	blockIPv4 net.IP
	blockIPv6 net.IP
	next      resolver.Layer
}

// newFilterLayer wraps next with engine, using groupID for every query.
// The resolver pipeline's Query carries no client IP, so no per-client
// group mapping is done here.
func newFilterLayer(engine *filtering.Engine, groupID, blockType string, blockIPv4, blockIPv6 net.IP, next resolver.Layer) resolver.Layer {
	return &filterLayer{
		engine:    engine,
		l0:        filtering.NewL0Cache(),
		groupID:   groupID,
		blockType: blockType,
		blockIPv4: blockIPv4,
		blockIPv6: blockIPv6,
		next:      next,
	}
}

func (l *filterLayer) Resolve(ctx context.Context, q resolver.Query) (resolver.Resolution, error) {
	if !q.Internal && l.engine.Check(l.l0, q.Domain, l.groupID) {
		wire, err := l.blockedResponse(q)
		if err != nil {
			return resolver.Resolution{}, err
		}
		return resolver.Resolution{Wire: wire, Source: "filtered"}, nil
	}
	return l.next.Resolve(ctx, q)
}

func (l *filterLayer) blockedResponse(q resolver.Query) ([]byte, error) {
	if l.blockType == "address" {
		if addr := l.sinkholeFor(q.Type); addr != nil {
			return l.addressResponse(q, addr)
		}
	}
	if l.blockType == "nodata" {
		return dnsmsg.BuildErrorResponse(q.Request, uint16(dnsmsg.RCodeNoError)).Marshal()
	}
	return dnsmsg.BuildErrorResponse(q.Request, uint16(dnsmsg.RCodeNXDomain)).Marshal()
}

func (l *filterLayer) sinkholeFor(t dnsmsg.RecordType) net.IP {
	switch t {
	case dnsmsg.TypeA:
		return l.blockIPv4
	case dnsmsg.TypeAAAA:
		return l.blockIPv6
	default:
		return nil
	}
}

func (l *filterLayer) addressResponse(q resolver.Query, addr net.IP) ([]byte, error) {
	rec := dnsmsg.NewIPRecord(dnsmsg.NewRRHeader(q.Domain, dnsmsg.ClassIN, 60), addr)
	resp := dnsmsg.Packet{
		Header: dnsmsg.Header{
			ID:      q.Request.Header.ID,
			Flags:   (q.Request.Header.Flags & dnsmsg.RDFlag) | dnsmsg.QRFlag | dnsmsg.RAFlag,
			QDCount: 1,
			ANCount: 1,
		},
		Questions: q.Request.Questions,
		Answers:   []dnsmsg.Record{rec},
	}
	return resp.Marshal()
}
