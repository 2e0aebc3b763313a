package matcher

import (
	"sync"

	"github.com/coder/hnsw"
	"github.com/kozaktomas/face-registry/internal/descriptor"
)

// indexMaxNeighbors is the HNSW M parameter.
const indexMaxNeighbors = 16

// indexSearchK is how many nearest descriptors the graph search returns
// before the exact re-scoring pass.
const indexSearchK = 16

// Index is an ANN-accelerated matcher backed by an HNSW graph over every
// stored descriptor. The graph narrows the candidate set; the final decision
// (per-profile best distance, threshold, tie-break) is re-computed exactly by
// the same rule Linear uses, so results stay deterministic.
type Index struct {
	mu        sync.RWMutex
	graph     *hnsw.Graph[int64]
	idProfile map[int64]string // HNSW node ID -> owning profile ID
	byProfile map[string]Candidate
}

// NewIndex creates an empty index. Rebuild must be called before matching.
func NewIndex() *Index {
	return &Index{
		idProfile: make(map[int64]string),
		byProfile: make(map[string]Candidate),
	}
}

// Rebuild replaces the graph with one built from the given candidate set.
// Called after every profile mutation; the catalog is small so a full rebuild
// is cheaper than coping with HNSW's lack of true deletion.
func (ix *Index) Rebuild(candidates []Candidate) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.idProfile = make(map[int64]string)
	ix.byProfile = make(map[string]Candidate, len(candidates))
	ix.graph = nil

	g := hnsw.NewGraph[int64]()
	g.M = indexMaxNeighbors
	g.Ml = 1.0 / float64(indexMaxNeighbors) // Standard HNSW formula
	g.Distance = hnsw.CosineDistance

	var id int64
	added := false
	for _, c := range candidates {
		ix.byProfile[c.ProfileID] = c
		for _, d := range c.Descriptors {
			if len(d) == 0 {
				continue
			}
			g.Add(hnsw.MakeNode(id, []float32(d)))
			ix.idProfile[id] = c.ProfileID
			id++
			added = true
		}
	}

	if added {
		ix.graph = g
	}
}

// Count returns the number of indexed descriptors.
func (ix *Index) Count() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.idProfile)
}

// Match implements Matcher. The candidates argument is ignored in favor of
// the indexed set from the last Rebuild, which mirrors the same collection.
func (ix *Index) Match(query descriptor.Descriptor, _ []Candidate, threshold float64) (Result, error) {
	if threshold < 0 || threshold > 1 {
		return Result{}, ErrInvalidThreshold
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.graph == nil {
		return Result{Matched: false}, nil
	}

	neighbors := ix.graph.Search([]float32(query), indexSearchK)

	// Collect the profiles the search touched, then score them exactly.
	seen := make(map[string]bool)
	var narrowed []Candidate
	for _, n := range neighbors {
		profileID, ok := ix.idProfile[n.Key]
		if !ok || seen[profileID] {
			continue
		}
		seen[profileID] = true
		narrowed = append(narrowed, ix.byProfile[profileID])
	}

	return bestCandidate(query, narrowed, threshold), nil
}
