package matcher

import (
	"errors"

	"github.com/kozaktomas/face-registry/internal/descriptor"
)

// ErrInvalidThreshold is returned when the match threshold is outside [0, 1].
var ErrInvalidThreshold = errors.New("threshold must be between 0 and 1")

// distanceEpsilon is the floating-point tolerance for treating two profile
// scores as equal. Ties within this tolerance are broken on the smaller
// profile ID so matching stays deterministic regardless of candidate order.
const distanceEpsilon = 1e-9

// Candidate is one profile's set of stored descriptors.
type Candidate struct {
	ProfileID   string
	Descriptors []descriptor.Descriptor
}

// Result is the outcome of a match query.
type Result struct {
	Matched    bool    `json:"matched"`
	ProfileID  string  `json:"profile_id,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Distance   float64 `json:"-"`
}

// Matcher decides, from a query descriptor and a candidate set, whether and
// which profile matches. Implementations must be deterministic: the same
// query, candidates and threshold always produce the same result.
type Matcher interface {
	Match(query descriptor.Descriptor, candidates []Candidate, threshold float64) (Result, error)
}

// Rebuilder is implemented by matchers that maintain internal search state
// derived from the candidate set (e.g. an ANN index) and need a rebuild after
// the profile collection changes.
type Rebuilder interface {
	Rebuild(candidates []Candidate)
}

// Linear is a brute-force matcher: for each candidate the best (smallest)
// cosine distance over its descriptors, then the globally best candidate.
type Linear struct{}

// NewLinear creates a new brute-force matcher.
func NewLinear() *Linear {
	return &Linear{}
}

// Match implements Matcher. The match succeeds when the best candidate's
// confidence clears the threshold.
func (m *Linear) Match(query descriptor.Descriptor, candidates []Candidate, threshold float64) (Result, error) {
	if threshold < 0 || threshold > 1 {
		return Result{}, ErrInvalidThreshold
	}
	return bestCandidate(query, candidates, threshold), nil
}

// Confidence converts a cosine distance in [0, 2] to a normalized score in
// [0, 1], monotonically decreasing with distance.
func Confidence(distance float64) float64 {
	c := 1 - distance/2
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// candidateDistance returns the smallest distance between the query and any
// of the candidate's descriptors. Returns false if the candidate has none.
func candidateDistance(query descriptor.Descriptor, c Candidate) (float64, bool) {
	best := 0.0
	found := false
	for _, d := range c.Descriptors {
		dist := CosineDistance(query, d)
		if !found || dist < best {
			best = dist
			found = true
		}
	}
	return best, found
}

// bestCandidate scans the candidate set and applies the threshold and the
// smaller-ID tie-break.
func bestCandidate(query descriptor.Descriptor, candidates []Candidate, threshold float64) Result {
	var (
		bestID   string
		bestDist float64
		found    bool
	)

	for _, c := range candidates {
		dist, ok := candidateDistance(query, c)
		if !ok {
			continue
		}
		switch {
		case !found:
			bestID, bestDist, found = c.ProfileID, dist, true
		case dist < bestDist-distanceEpsilon:
			bestID, bestDist = c.ProfileID, dist
		case dist < bestDist+distanceEpsilon && c.ProfileID < bestID:
			// Equidistant within tolerance: prefer the smaller profile ID.
			bestID, bestDist = c.ProfileID, dist
		}
	}

	if !found {
		return Result{Matched: false}
	}

	confidence := Confidence(bestDist)
	if confidence < threshold {
		return Result{Matched: false}
	}

	return Result{
		Matched:    true,
		ProfileID:  bestID,
		Confidence: confidence,
		Distance:   bestDist,
	}
}
