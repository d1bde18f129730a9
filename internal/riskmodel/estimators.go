package riskmodel

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Estimator maps a standardised feature row to a probability.
type Estimator interface {
	Predict(x []float64) float64
}

const (
	KindLogistic     = "logistic"
	KindBoostedTrees = "boosted_trees"
	KindForest       = "forest"
)

type estimatorSpec struct {
	Kind string `json:"kind"`

	// logistic
	Weights   map[string]float64 `json:"weights,omitempty"`
	Intercept float64            `json:"intercept,omitempty"`

	// boosted_trees, forest
	BaseScore float64    `json:"base_score,omitempty"`
	Trees     []treeSpec `json:"trees,omitempty"`
}

type treeSpec struct {
	Nodes []nodeSpec `json:"nodes"`
}

// nodeSpec is one node of a binary decision tree. Split nodes go to Left when
// x[feature] <= threshold. Leaf nodes have no feature.
type nodeSpec struct {
	Feature   string  `json:"feature,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
	Left      int     `json:"left,omitempty"`
	Right     int     `json:"right,omitempty"`
	Value     float64 `json:"value,omitempty"`
}

func (s estimatorSpec) build(index map[string]int) (Estimator, error) {
	switch s.Kind {
	case KindLogistic:
		w := make([]float64, len(index))
		for name, v := range s.Weights {
			i, ok := index[name]
			if !ok {
				return nil, fmt.Errorf("%w: weight for unknown feature %q", ErrInvalidArtifact, name)
			}
			w[i] = v
		}
		return &Logistic{Weights: w, Intercept: s.Intercept}, nil

	case KindBoostedTrees, KindForest:
		if len(s.Trees) == 0 {
			return nil, fmt.Errorf("%w: %s with no trees", ErrInvalidArtifact, s.Kind)
		}
		trees := make([]tree, len(s.Trees))
		for i, ts := range s.Trees {
			t, err := ts.build(index)
			if err != nil {
				return nil, fmt.Errorf("tree %d: %w", i, err)
			}
			trees[i] = t
		}
		if s.Kind == KindForest {
			return &Forest{trees: trees}, nil
		}
		return &BoostedTrees{trees: trees, BaseScore: s.BaseScore}, nil

	default:
		return nil, fmt.Errorf("%w: unknown estimator kind %q", ErrInvalidArtifact, s.Kind)
	}
}

type node struct {
	feature     int // -1 for leaves
	threshold   float64
	left, right int
	value       float64
}

type tree []node

func (ts treeSpec) build(index map[string]int) (tree, error) {
	if len(ts.Nodes) == 0 {
		return nil, fmt.Errorf("%w: empty tree", ErrInvalidArtifact)
	}
	t := make(tree, len(ts.Nodes))
	for i, ns := range ts.Nodes {
		if ns.Feature == "" {
			t[i] = node{feature: -1, value: ns.Value}
			continue
		}
		f, ok := index[ns.Feature]
		if !ok {
			return nil, fmt.Errorf("%w: split on unknown feature %q", ErrInvalidArtifact, ns.Feature)
		}
		// Children must point forward so evaluation always terminates.
		if ns.Left <= i || ns.Right <= i || ns.Left >= len(ts.Nodes) || ns.Right >= len(ts.Nodes) {
			return nil, fmt.Errorf("%w: node %d has invalid children %d/%d", ErrInvalidArtifact, i, ns.Left, ns.Right)
		}
		t[i] = node{feature: f, threshold: ns.Threshold, left: ns.Left, right: ns.Right}
	}
	return t, nil
}

func (t tree) eval(x []float64) float64 {
	i := 0
	for {
		n := t[i]
		if n.feature < 0 {
			return n.value
		}
		if x[n.feature] <= n.threshold {
			i = n.left
		} else {
			i = n.right
		}
	}
}

type Logistic struct {
	Weights   []float64
	Intercept float64
}

func (l *Logistic) Predict(x []float64) float64 {
	return sigmoid(floats.Dot(l.Weights, x) + l.Intercept)
}

// BoostedTrees sums leaf margins onto the base score and applies the logistic
// link.
type BoostedTrees struct {
	trees     []tree
	BaseScore float64
}

func (b *BoostedTrees) Predict(x []float64) float64 {
	margin := b.BaseScore
	for _, t := range b.trees {
		margin += t.eval(x)
	}
	return sigmoid(margin)
}

// Forest averages leaf probabilities.
type Forest struct {
	trees []tree
}

func (f *Forest) Predict(x []float64) float64 {
	var sum float64
	for _, t := range f.trees {
		sum += t.eval(x)
	}
	return Clamp(sum / float64(len(f.trees)))
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
