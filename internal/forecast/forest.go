package forecast

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/flowerbelle/backend-go/internal/domain"
)

// ForestConfig holds random forest hyperparameters.
type ForestConfig struct {
	Trees           int   `json:"n_estimators"`
	MaxDepth        int   `json:"max_depth"` // 0 grows until leaves are pure or too small
	MinSamplesSplit int   `json:"min_samples_split"`
	MinSamplesLeaf  int   `json:"min_samples_leaf"`
	Seed            int64 `json:"random_state"`
	Workers         int   `json:"-"`
}

// DefaultForestConfig returns the production hyperparameters.
func DefaultForestConfig() ForestConfig {
	return ForestConfig{
		Trees:           100,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Seed:            42,
		Workers:         runtime.NumCPU(),
	}
}

func (c ForestConfig) withDefaults() ForestConfig {
	d := DefaultForestConfig()
	if c.Trees <= 0 {
		c.Trees = d.Trees
	}
	if c.MinSamplesSplit < 2 {
		c.MinSamplesSplit = d.MinSamplesSplit
	}
	if c.MinSamplesLeaf < 1 {
		c.MinSamplesLeaf = d.MinSamplesLeaf
	}
	if c.Workers < 1 {
		c.Workers = d.Workers
	}
	if c.MaxDepth < 0 {
		c.MaxDepth = 0
	}
	return c
}

// ForestBackend fits bootstrap-aggregated regression trees on unscaled features.
type ForestBackend struct {
	cfg ForestConfig
}

func NewForestBackend(cfg ForestConfig) *ForestBackend {
	return &ForestBackend{cfg: cfg.withDefaults()}
}

func (b *ForestBackend) Type() domain.ModelType { return domain.ModelTypeRandomForest }

func (b *ForestBackend) ScalesFeatures() bool { return false }

func (b *ForestBackend) ConfidenceBand() Band { return ForestBand }

func (b *ForestBackend) Parameters() map[string]any {
	return map[string]any{
		"n_estimators":      b.cfg.Trees,
		"max_depth":         b.cfg.MaxDepth,
		"min_samples_split": b.cfg.MinSamplesSplit,
		"min_samples_leaf":  b.cfg.MinSamplesLeaf,
		"random_state":      b.cfg.Seed,
	}
}

// Fit grows the trees concurrently. Each tree draws its bootstrap sample from its
// own seeded source, so the fitted forest does not depend on scheduling.
func (b *ForestBackend) Fit(ctx context.Context, X [][]float64, y []float64) (Regressor, error) {
	if err := validateTrainingSet(X, y); err != nil {
		return nil, err
	}

	cfg := b.cfg
	forest := &ForestModel{Trees: make([]*Tree, cfg.Trees)}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for t := 0; t < cfg.Trees; t++ {
		t := t
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(cfg.Seed + int64(t)))
			sample := make([]int, len(X))
			for i := range sample {
				sample[i] = rng.Intn(len(X))
			}
			forest.Trees[t] = growTree(X, y, sample, cfg, rng)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("random forest fit: %w", err)
	}

	forest.FeatureCount = len(X[0])
	return forest, nil
}

// ForestModel averages the predictions of its trees.
type ForestModel struct {
	FeatureCount int     `json:"feature_count"`
	Trees        []*Tree `json:"trees"`
}

func (m *ForestModel) Predict(features []float64) (float64, error) {
	if len(m.Trees) == 0 {
		return 0, fmt.Errorf("random forest has no trees")
	}
	if len(features) != m.FeatureCount {
		return 0, fmt.Errorf("random forest expects %d features, got %d", m.FeatureCount, len(features))
	}
	sum := 0.0
	for _, t := range m.Trees {
		sum += t.predict(features)
	}
	return sum / float64(len(m.Trees)), nil
}

// Tree is a regression tree stored as a flat node array; node 0 is the root.
type Tree struct {
	Nodes []TreeNode `json:"nodes"`
}

// TreeNode is a split when Left > 0, a leaf otherwise.
type TreeNode struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`
	Value     float64 `json:"v"`
}

func (t *Tree) predict(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Left == 0 {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

type treeBuilder struct {
	X     [][]float64
	y     []float64
	cfg   ForestConfig
	rng   *rand.Rand
	nodes []TreeNode
}

func growTree(X [][]float64, y []float64, sample []int, cfg ForestConfig, rng *rand.Rand) *Tree {
	b := &treeBuilder{X: X, y: y, cfg: cfg, rng: rng}
	b.build(sample, 0)
	return &Tree{Nodes: b.nodes}
}

func (b *treeBuilder) build(idx []int, depth int) int {
	id := len(b.nodes)
	b.nodes = append(b.nodes, TreeNode{Value: b.mean(idx)})

	if len(idx) < b.cfg.MinSamplesSplit || (b.cfg.MaxDepth > 0 && depth >= b.cfg.MaxDepth) || b.pure(idx) {
		return id
	}

	feature, threshold, ok := b.bestSplit(idx)
	if !ok {
		return id
	}

	left := make([]int, 0, len(idx))
	right := make([]int, 0, len(idx))
	for _, i := range idx {
		if b.X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	b.nodes[id].Feature = feature
	b.nodes[id].Threshold = threshold
	b.nodes[id].Left = l
	b.nodes[id].Right = r
	return id
}

// bestSplit scans every feature, visited in a random order so ties are broken by
// the tree's own source, and picks the threshold with the largest reduction in
// squared error that leaves at least MinSamplesLeaf rows on each side.
func (b *treeBuilder) bestSplit(idx []int) (int, float64, bool) {
	n := len(idx)
	total := 0.0
	for _, i := range idx {
		total += b.y[i]
	}

	bestScore := total * total / float64(n)
	bestFeature, bestThreshold, found := -1, 0.0, false

	sorted := make([]int, n)
	for _, f := range b.rng.Perm(len(b.X[idx[0]])) {
		copy(sorted, idx)
		sort.SliceStable(sorted, func(a, c int) bool { return b.X[sorted[a]][f] < b.X[sorted[c]][f] })

		leftSum := 0.0
		for k := 0; k < n-1; k++ {
			leftSum += b.y[sorted[k]]
			nl, nr := k+1, n-k-1
			if nl < b.cfg.MinSamplesLeaf || nr < b.cfg.MinSamplesLeaf {
				continue
			}
			lo, hi := b.X[sorted[k]][f], b.X[sorted[k+1]][f]
			if lo == hi {
				continue
			}
			rightSum := total - leftSum
			score := leftSum*leftSum/float64(nl) + rightSum*rightSum/float64(nr)
			if score > bestScore+1e-12 {
				bestScore = score
				bestFeature = f
				bestThreshold = lo + (hi-lo)/2
				found = true
			}
		}
	}

	return bestFeature, bestThreshold, found
}

func (b *treeBuilder) mean(idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	sum := 0.0
	for _, i := range idx {
		sum += b.y[i]
	}
	return sum / float64(len(idx))
}

func (b *treeBuilder) pure(idx []int) bool {
	first := b.y[idx[0]]
	for _, i := range idx[1:] {
		if b.y[i] != first {
			return false
		}
	}
	return true
}
