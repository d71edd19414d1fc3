package memory

import (
	"time"

	"github.com/magray/magray/pkg/magray"
)

// PromotionPolicy holds the thresholds spec.md §4.7 defines at design
// level: "candidate if age > layer_ttl_soft AND access_count ≥
// min_access AND score ≥ promote_threshold; decay factor reduces scores
// over time; tie-break by last access."
type PromotionPolicy struct {
	MinAccess        int64
	PromoteThreshold float64
	// DecayPerHour is subtracted from a record's score for every hour
	// since its last access, before the promotion thresholds are
	// evaluated.
	DecayPerHour float64
	// TTLOverrides replaces magray.LayerTTL's built-in soft TTLs for the
	// layers it names, letting internal/config's layer_ttls{...} knob
	// reach this policy without hardcoding deployment-specific
	// durations into pkg/magray. Layers absent from the map keep
	// magray.LayerTTL's default.
	TTLOverrides map[magray.MemoryLayer]time.Duration
}

// ttlFor returns the soft TTL in effect for layer, honoring
// TTLOverrides before falling back to magray.LayerTTL.
func (p PromotionPolicy) ttlFor(layer magray.MemoryLayer) time.Duration {
	if ttl, ok := p.TTLOverrides[layer]; ok {
		return ttl
	}
	return magray.LayerTTL(layer)
}

// DefaultPromotionPolicy matches the acceptance scenario in spec.md §11
// (S3): access_count ≥ 5, score ≥ 0.7 after 24h in Interact.
func DefaultPromotionPolicy() PromotionPolicy {
	return PromotionPolicy{MinAccess: 5, PromoteThreshold: 0.7, DecayPerHour: 0.001}
}

// DecayedScore applies the policy's decay factor to record's score as
// of now, without mutating record.
func (p PromotionPolicy) DecayedScore(record magray.MemoryRecord, now time.Time) float64 {
	hours := now.Sub(record.LastAccessAt).Hours()
	if hours <= 0 {
		return record.Score
	}
	decayed := record.Score - p.DecayPerHour*hours
	if decayed < 0 {
		return 0
	}
	return decayed
}

// NextLayer returns the layer a record promotes into, or "" if current
// is already the terminal layer (Assets).
func NextLayer(current magray.MemoryLayer) magray.MemoryLayer {
	switch current {
	case magray.LayerInteract:
		return magray.LayerInsights
	case magray.LayerInsights:
		return magray.LayerAssets
	default:
		return ""
	}
}

// Decision is the outcome of evaluating one record against the
// promotion policy.
type Decision int

// Decision variants.
const (
	// DecisionKeep leaves the record in its current layer.
	DecisionKeep Decision = iota
	// DecisionPromote moves the record to the next layer.
	DecisionPromote
	// DecisionDelete removes the record: it has exceeded its layer's
	// soft TTL but never earned promotion.
	DecisionDelete
)

// Evaluate applies the promotion policy to record as of now, per
// spec.md §4.7's promotion policy design. Assets records are never
// evaluated for deletion (they have no TTL) and never promote further.
func (p PromotionPolicy) Evaluate(record magray.MemoryRecord, now time.Time) Decision {
	if record.Layer == magray.LayerAssets {
		return DecisionKeep
	}
	ttlSoft := p.ttlFor(record.Layer)
	age := now.Sub(record.CreatedAt)
	if age <= ttlSoft {
		return DecisionKeep
	}
	score := p.DecayedScore(record, now)
	if record.AccessCount >= p.MinAccess && score >= p.PromoteThreshold {
		return DecisionPromote
	}
	return DecisionDelete
}
