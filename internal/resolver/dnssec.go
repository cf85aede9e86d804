package resolver

import (
	"context"
	"log/slog"

	"github.com/jroosing/hydradns/internal/ports"
)

// dnssecLayer forwards to next, then — only when the query requested
// DNSSEC (dnssecOK) and a validator is configured — asks the validator to
// confirm the chain of trust. The validator may issue its own DS/DNSKEY/
// RRSIG lookups against the pool; those are tagged Query.Internal so the
// event logger can tell them apart from client-initiated queries. A nil
// Validator makes this layer a pure passthrough, per spec §4.L's note that
// DNSSEC is specified only via the port it consumes.
type dnssecLayer struct {
	validator ports.DnssecValidator
	dnssecOK  func(q Query) bool
	log       *slog.Logger
	next      Layer
}

// NewDNSSECLayer wraps next with optional DNSSEC validation. dnssecOK
// reports whether a given query requested validation (typically read off
// the request's EDNS DO bit); a nil validator or nil dnssecOK disables the
// layer entirely.
func NewDNSSECLayer(validator ports.DnssecValidator, dnssecOK func(q Query) bool, log *slog.Logger, next Layer) Layer {
	if log == nil {
		log = slog.Default()
	}
	return &dnssecLayer{validator: validator, dnssecOK: dnssecOK, log: log, next: next}
}

func (l *dnssecLayer) Resolve(ctx context.Context, q Query) (Resolution, error) {
	res, err := l.next.Resolve(ctx, q)
	if err != nil || l.validator == nil || l.dnssecOK == nil || !l.dnssecOK(q) {
		return res, err
	}

	status, verr := l.validator.Validate(ctx, q.Domain, q.Type)
	if verr != nil {
		l.log.Warn("dnssec validation failed", "domain", q.Domain, "type", q.Type, "error", verr)
		return res, nil
	}
	res.DNSSEC = int(status)
	return res, nil
}
