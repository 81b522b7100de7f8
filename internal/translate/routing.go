package translate

import (
	"fmt"
	"strings"

	"github.com/tartunlp/translation-gateway/internal/registry"
)

// RoutingStrategy derives the broker routing key for a validated request.
// The produced key is the wire contract between the gateway and the worker
// fleet: workers bind queues by pattern against it, so segment order and the
// literal dot separator must not change.
type RoutingStrategy interface {
	RoutingKey(ws registry.Workspace, req Request) (string, error)
}

// TripleKey joins the exchange prefix with the src, tgt, and domain segments
// in that fixed order, e.g. "translation.est.eng.general". Used by the
// current API generation.
type TripleKey struct {
	Exchange string
}

// RoutingKey implements RoutingStrategy.
func (t TripleKey) RoutingKey(_ registry.Workspace, req Request) (string, error) {
	return strings.Join([]string{t.Exchange, req.Src, req.Tgt, req.Domain}, "."), nil
}

// PatternKey prefixes the workspace name and appends the caller-declared
// ordered field list projected from the request. The legacy API generation
// declared its mandatory routing fields per workspace; an absent field fails
// with a MissingParameter error naming the first unresolved field.
type PatternKey struct {
	Fields []string
}

// RoutingKey implements RoutingStrategy.
func (p PatternKey) RoutingKey(ws registry.Workspace, req Request) (string, error) {
	segments := make([]string, 0, len(p.Fields)+1)
	segments = append(segments, ws.Name)
	for _, field := range p.Fields {
		value, ok := req.Field(field)
		if !ok {
			return "", NewStatusError(
				ClassMissingParameter,
				fmt.Sprintf("Mandatory parameter %s missing", field),
				ErrMissingField)
		}
		segments = append(segments, value)
	}
	return strings.Join(segments, "."), nil
}

// StrategyFor selects the routing scheme for a workspace: the legacy pattern
// scheme when the workspace declares a routing pattern, else the fixed triple.
func StrategyFor(exchange string, ws registry.Workspace) RoutingStrategy {
	if len(ws.RoutingPattern) > 0 {
		return PatternKey{Fields: ws.RoutingPattern}
	}
	return TripleKey{Exchange: exchange}
}
