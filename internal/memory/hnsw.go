package memory

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/magray/magray/pkg/magray"
)

// HNSWParams configures the index's ANN index, per spec.md §4.7:
// "Vector index: HNSW parameters {M, ef_construction, ef_search, dim}".
type HNSWParams struct {
	// M bounds the number of bidirectional links per node per layer.
	M int
	// EfConstruction bounds the candidate list size during insertion.
	EfConstruction int
	// EfSearch bounds the candidate list size during search.
	EfSearch int
	// Dim is the required embedding dimension; inserts with a mismatched
	// dimension fail rather than silently truncate.
	Dim int
}

// DefaultHNSWParams returns reasonable defaults for small-to-medium
// operating sets.
func DefaultHNSWParams(dim int) HNSWParams {
	return HNSWParams{M: 16, EfConstruction: 200, EfSearch: 64, Dim: dim}
}

// hnswNode is one indexed vector plus its per-layer neighbor lists.
type hnswNode struct {
	id        string
	vector    []float32
	level     int
	neighbors [][]string // neighbors[layer] = ids of connected nodes
	tombstone bool
}

// HNSWIndex is a hand-rolled hierarchical navigable small-world index over
// cosine distance for normalized vectors. No library in the example pack
// ships a full HNSW implementation (see DESIGN.md), so this adapts the
// teacher's registry.MemoryCache concurrent-read/serialized-write
// discipline (sync.RWMutex guarding a map, readers never blocking each
// other) to a graph structure instead of a flat map.
//
// Inserts are incremental: a new node's neighbor lists are built by
// greedy search from the existing entry point, never requiring a full
// rebuild. Deletes are tombstoned in place and only physically removed
// from neighbor lists during Compact, so concurrent searches in flight
// never observe a half-removed node.
type HNSWIndex struct {
	mu     sync.RWMutex
	params HNSWParams
	nodes  map[string]*hnswNode
	entry  string // id of the current entry point, "" if empty
	rng    *rand.Rand
}

// NewHNSWIndex constructs an empty index with the given parameters.
func NewHNSWIndex(params HNSWParams) *HNSWIndex {
	return &HNSWIndex{
		params: params,
		nodes:  make(map[string]*hnswNode),
		rng:    rand.New(rand.NewSource(1)),
	}
}

// candidate pairs a node id with its distance to the query, used to
// drive the bounded candidate lists during both insertion and search.
type candidate struct {
	id   string
	dist float32
}

// Insert adds vec under id, normalizing it and validating its dimension
// equals params.Dim. Insertion is incremental, per spec.md §4.7: existing
// neighbor lists are extended with links to the new node, and a list that
// grows past 2×M is pruned back to its M closest neighbors; the index is
// never rebuilt.
func (h *HNSWIndex) Insert(id string, vec []float32) error {
	if len(vec) != h.params.Dim {
		return magray.NewError(magray.ErrValidationError, "embedding dim %d != configured dim %d", len(vec), h.params.Dim)
	}
	normalized := normalize(vec)
	level := h.randomLevel()

	h.mu.Lock()
	defer h.mu.Unlock()

	node := &hnswNode{id: id, vector: normalized, level: level, neighbors: make([][]string, level+1)}
	if h.entry == "" {
		h.nodes[id] = node
		h.entry = id
		return nil
	}

	entry := h.entry
	entryNode := h.nodes[entry]
	for l := entryNode.level; l > level; l-- {
		entry = h.greedyDescend(entry, normalized, l)
	}
	for l := min(level, entryNode.level); l >= 0; l-- {
		candidates := h.searchLayer(normalized, entry, h.params.EfConstruction, l)
		neighbors := selectNeighbors(candidates, h.params.M)
		node.neighbors[l] = neighbors
		for _, nid := range neighbors {
			h.link(nid, id, l)
		}
		if len(candidates) > 0 {
			entry = candidates[0].id
		}
	}
	h.nodes[id] = node
	if level > entryNode.level {
		h.entry = id
	}
	return nil
}

// Delete tombstones id so Search skips it immediately; the node and its
// neighbor-list references are only reclaimed by Compact.
func (h *HNSWIndex) Delete(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n, ok := h.nodes[id]; ok {
		n.tombstone = true
	}
}

// Compact physically removes tombstoned nodes and prunes references to
// them from every remaining neighbor list, amortizing the cost of
// deletion across periodic maintenance rather than every Delete call.
func (h *HNSWIndex) Compact() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, n := range h.nodes {
		if n.tombstone {
			delete(h.nodes, id)
			if h.entry == id {
				h.entry = h.anyRemainingID()
			}
		}
	}
	for _, n := range h.nodes {
		for l, neighbors := range n.neighbors {
			filtered := neighbors[:0]
			for _, nid := range neighbors {
				if target, ok := h.nodes[nid]; ok && !target.tombstone {
					filtered = append(filtered, nid)
				}
			}
			n.neighbors[l] = filtered
		}
	}
}

func (h *HNSWIndex) anyRemainingID() string {
	for id := range h.nodes {
		return id
	}
	return ""
}

// Search returns up to k ids nearest to query by cosine distance,
// searching at ef_search breadth, per spec.md §4.7's recall target.
func (h *HNSWIndex) Search(ctx context.Context, query []float32, k int) ([]magray.SearchResult, error) {
	if len(query) != h.params.Dim {
		return nil, magray.NewError(magray.ErrValidationError, "query dim %d != configured dim %d", len(query), h.params.Dim)
	}
	normalized := normalize(query)

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.entry == "" {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entry := h.entry
	entryLevel := h.nodes[entry].level
	for l := entryLevel; l > 0; l-- {
		entry = h.greedyDescend(entry, normalized, l)
	}
	ef := h.params.EfSearch
	if ef < k {
		ef = k
	}
	candidates := h.searchLayer(normalized, entry, ef, 0)
	results := make([]magray.SearchResult, 0, k)
	for _, c := range candidates {
		if len(results) >= k {
			break
		}
		if h.nodes[c.id].tombstone {
			continue // the entry point itself may be tombstoned
		}
		results = append(results, magray.SearchResult{ID: c.id, Score: 1 - float64(c.dist)})
	}
	return results, nil
}

// Len returns the number of live (non-tombstoned) nodes.
func (h *HNSWIndex) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, node := range h.nodes {
		if !node.tombstone {
			n++
		}
	}
	return n
}

func (h *HNSWIndex) greedyDescend(from string, query []float32, layer int) string {
	current := from
	for {
		node := h.nodes[current]
		best := current
		bestDist := cosineDistance(node.vector, query)
		if layer < len(node.neighbors) {
			for _, nid := range node.neighbors[layer] {
				n := h.nodes[nid]
				if n == nil || n.tombstone {
					continue
				}
				d := cosineDistance(n.vector, query)
				if d < bestDist {
					best, bestDist = nid, d
				}
			}
		}
		if best == current {
			return current
		}
		current = best
	}
}

// searchLayer performs a bounded best-first search at layer starting
// from entry, returning up to ef candidates sorted by ascending
// distance.
func (h *HNSWIndex) searchLayer(query []float32, entry string, ef int, layer int) []candidate {
	visited := map[string]bool{entry: true}
	entryDist := cosineDistance(h.nodes[entry].vector, query)
	candidates := []candidate{{id: entry, dist: entryDist}}
	results := []candidate{{id: entry, dist: entryDist}}

	for len(candidates) > 0 {
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].dist < candidates[j].dist })
		c := candidates[0]
		candidates = candidates[1:]

		sort.Slice(results, func(i, j int) bool { return results[i].dist < results[j].dist })
		if len(results) >= ef && c.dist > results[len(results)-1].dist {
			break
		}

		node := h.nodes[c.id]
		if layer >= len(node.neighbors) {
			continue
		}
		for _, nid := range node.neighbors[layer] {
			if visited[nid] {
				continue
			}
			visited[nid] = true
			n := h.nodes[nid]
			if n == nil || n.tombstone {
				continue
			}
			d := cosineDistance(n.vector, query)
			candidates = append(candidates, candidate{id: nid, dist: d})
			results = append(results, candidate{id: nid, dist: d})
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].dist < results[j].dist })
	if len(results) > ef {
		results = results[:ef]
	}
	return results
}

func selectNeighbors(candidates []candidate, m int) []string {
	if len(candidates) > m {
		candidates = candidates[:m]
	}
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.id
	}
	return ids
}

func (h *HNSWIndex) link(from, to string, layer int) {
	node := h.nodes[from]
	if node == nil || layer >= len(node.neighbors) {
		return
	}
	node.neighbors[layer] = append(node.neighbors[layer], to)
	if len(node.neighbors[layer]) > h.params.M*2 {
		// Prune back to the M closest neighbors so degree stays bounded
		// as the graph grows; distances are recomputed against `node`.
		cands := make([]candidate, 0, len(node.neighbors[layer]))
		for _, nid := range node.neighbors[layer] {
			if n := h.nodes[nid]; n != nil {
				cands = append(cands, candidate{id: nid, dist: cosineDistance(node.vector, n.vector)})
			}
		}
		sort.Slice(cands, func(i, j int) bool { return cands[i].dist < cands[j].dist })
		node.neighbors[layer] = selectNeighbors(cands, h.params.M)
	}
}

func (h *HNSWIndex) randomLevel() int {
	level := 0
	for h.rng.Float64() < 0.5 && level < 32 {
		level++
	}
	return level
}

func normalize(vec []float32) []float32 {
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return vec
	}
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}

// cosineDistance returns 1 - cosine similarity for already-normalized
// vectors, i.e. the dot product subtracted from 1.
func cosineDistance(a, b []float32) float32 {
	if len(a) != len(b) {
		return float32(math.Inf(1))
	}
	var dot float32
	for i := range a {
		dot += a[i] * b[i]
	}
	return 1 - dot
}

