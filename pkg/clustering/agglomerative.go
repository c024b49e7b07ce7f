package clustering

import (
	"container/heap"
	"context"
)

// graph is the sparse similarity graph over keyword indices.
type graph struct {
	n         int
	adj       []map[int]float64
	edgeCount int
}

func newGraph(n int) *graph {
	adj := make([]map[int]float64, n)
	for i := range adj {
		adj[i] = map[int]float64{}
	}
	return &graph{n: n, adj: adj}
}

func (g *graph) addEdge(i, j int, sim float64) {
	g.adj[i][j] = sim
	g.adj[j][i] = sim
	g.edgeCount++
}

// cluster is a working cluster during the merge phase.
type cluster struct {
	id      int
	members []int

	// internalSimSum and internalPairs track total pairwise similarity for
	// coherence reporting. Pairs below the edge threshold contribute zero.
	internalSimSum float64
	internalPairs  int64
}

func (c *cluster) size() int { return len(c.members) }

func (c *cluster) meanInternalSimilarity() float64 {
	if c.internalPairs == 0 {
		return 0
	}
	return c.internalSimSum / float64(c.internalPairs)
}

// mergeCandidate is a heap entry. Stale entries are detected through the
// version counters and skipped on pop.
type mergeCandidate struct {
	a, b         int
	sim          float64
	verA, verB   int
	combinedSize int
}

type mergeHeap []mergeCandidate

func (h mergeHeap) Len() int { return len(h) }

// Less orders by similarity descending; ties prefer merging smaller, then
// lower cluster ids, keeping runs deterministic.
func (h mergeHeap) Less(i, j int) bool {
	if h[i].sim != h[j].sim {
		return h[i].sim > h[j].sim
	}
	if h[i].combinedSize != h[j].combinedSize {
		return h[i].combinedSize < h[j].combinedSize
	}
	if h[i].a != h[j].a {
		return h[i].a < h[j].a
	}
	return h[i].b < h[j].b
}

func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x any)   { *h = append(*h, x.(mergeCandidate)) }
func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// agglomerate merges singletons by average linkage until no pair reaches the
// threshold or the cluster count drops to MaxClusters. Inter-cluster
// similarity follows Lance-Williams for average linkage:
//
//	sim(k, a∪b) = (|a|·sim(k,a) + |b|·sim(k,b)) / (|a| + |b|)
//
// with absent (below-threshold) similarities counted as zero.
func agglomerate(ctx context.Context, g *graph, params Params) ([]*cluster, error) {
	clusters := make(map[int]*cluster, g.n)
	versions := make([]int, g.n)
	sims := make(map[int]map[int]float64, g.n)

	for i := 0; i < g.n; i++ {
		clusters[i] = &cluster{id: i, members: []int{i}}
		sims[i] = map[int]float64{}
	}
	h := &mergeHeap{}
	for i := 0; i < g.n; i++ {
		for j, sim := range g.adj[i] {
			if i < j {
				sims[i][j] = sim
				sims[j][i] = sim
				*h = append(*h, mergeCandidate{a: i, b: j, sim: sim, combinedSize: 2})
			}
		}
	}
	heap.Init(h)

	// For large inputs the merge loop stops once the count is inside the
	// cluster cap. Inputs already under the cap merge on threshold alone,
	// otherwise nothing would ever consolidate.
	stopAt := params.MaxClusters
	if g.n <= params.MaxClusters {
		stopAt = 0
	}

	active := len(clusters)
	pops := 0
	for h.Len() > 0 && active > stopAt {
		pops++
		if pops%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		top := heap.Pop(h).(mergeCandidate)
		ca, okA := clusters[top.a]
		cb, okB := clusters[top.b]
		if !okA || !okB || top.verA != versions[top.a] || top.verB != versions[top.b] {
			continue // stale
		}
		if top.sim < params.SimilarityThreshold {
			break
		}
		if ca.size()+cb.size() > params.MaxClusterSize {
			// Oversized merges are discarded; both clusters stay as they
			// are and may still merge with smaller neighbors.
			continue
		}

		merged := mergeClusters(ca, cb, top.sim)
		na, nb := ca.size(), cb.size()

		// Fold b's neighborhood into a's under the merged id (reuse a's id).
		newSims := map[int]float64{}
		for k, sim := range sims[top.a] {
			if k != top.b {
				newSims[k] = float64(na) * sim
			}
		}
		for k, sim := range sims[top.b] {
			if k != top.a {
				newSims[k] += float64(nb) * sim
			}
		}

		delete(clusters, top.b)
		delete(sims, top.b)
		versions[top.a]++
		versions[top.b]++
		clusters[top.a] = merged
		active--

		total := float64(na + nb)
		for k := range newSims {
			newSims[k] /= total
			delete(sims[k], top.a)
			delete(sims[k], top.b)
			if newSims[k] >= params.SimilarityThreshold {
				sims[k][top.a] = newSims[k]
				heap.Push(h, mergeCandidate{
					a: minInt(top.a, k), b: maxInt(top.a, k),
					sim:          newSims[k],
					verA:         versions[minInt(top.a, k)],
					verB:         versions[maxInt(top.a, k)],
					combinedSize: merged.size() + clusters[k].size(),
				})
			} else {
				delete(newSims, k)
			}
		}
		sims[top.a] = newSims
	}

	out := make([]*cluster, 0, len(clusters))
	for _, c := range clusters {
		out = append(out, c)
	}
	return out, nil
}

func mergeClusters(a, b *cluster, linkSim float64) *cluster {
	members := make([]int, 0, a.size()+b.size())
	members = append(members, a.members...)
	members = append(members, b.members...)
	return &cluster{
		id:             a.id,
		members:        members,
		internalSimSum: a.internalSimSum + b.internalSimSum + linkSim*float64(a.size())*float64(b.size()),
		internalPairs:  a.internalPairs + b.internalPairs + int64(a.size())*int64(b.size()),
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
