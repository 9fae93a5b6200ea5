package tree

import (
	"sort"
)

// node 회귀 트리 노드 (배열 기반)
type node struct {
	Leaf      bool    `json:"leaf"`
	Value     float64 `json:"v,omitempty"`
	Feature   int     `json:"f,omitempty"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
}

// regTree 단일 회귀 트리
type regTree struct {
	Nodes []node `json:"nodes"`
}

func (t *regTree) predict(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// booster 제곱오차 그래디언트 부스팅 (샘플링 없음 → 결정적)
type booster struct {
	Base         float64   `json:"base"`
	LearningRate float64   `json:"learning_rate"`
	Trees        []regTree `json:"trees"`
}

func (b *booster) predict(x []float64) float64 {
	out := b.Base
	for i := range b.Trees {
		out += b.LearningRate * b.Trees[i].predict(x)
	}
	return out
}

// grower builds trees over a fixed sample set
type grower struct {
	x       [][]float64
	params  Params
	order   [][]int // 피처별 사전 정렬된 샘플 인덱스
	gain    []float64
	inNode  []bool
	residue []float64
}

func newGrower(x [][]float64, params Params) *grower {
	nFeat := 0
	if len(x) > 0 {
		nFeat = len(x[0])
	}
	g := &grower{
		x:      x,
		params: params,
		order:  make([][]int, nFeat),
		gain:   make([]float64, nFeat),
		inNode: make([]bool, len(x)),
	}
	for f := 0; f < nFeat; f++ {
		idx := make([]int, len(x))
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(a, b int) bool { return x[idx[a]][f] < x[idx[b]][f] })
		g.order[f] = idx
	}
	return g
}

// grow fits one tree to the residuals
func (g *grower) grow(residue []float64) regTree {
	g.residue = residue
	all := make([]int, len(residue))
	for i := range all {
		all[i] = i
	}
	t := regTree{}
	g.split(&t, all, 0)
	return t
}

type splitCandidate struct {
	feature   int
	threshold float64
	gain      float64
}

func (g *grower) split(t *regTree, members []int, depth int) int {
	sum := 0.0
	for _, i := range members {
		sum += g.residue[i]
	}
	id := len(t.Nodes)
	t.Nodes = append(t.Nodes, node{Leaf: true, Value: sum / (float64(len(members)) + g.params.Lambda)})

	if depth >= g.params.MaxDepth || len(members) < 2*g.params.MinLeaf {
		return id
	}

	best, ok := g.bestSplit(members, sum)
	if !ok {
		return id
	}

	var left, right []int
	for _, i := range members {
		if g.x[i][best.feature] <= best.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	g.gain[best.feature] += best.gain

	l := g.split(t, left, depth+1)
	r := g.split(t, right, depth+1)
	t.Nodes[id] = node{Feature: best.feature, Threshold: best.threshold, Left: l, Right: r}
	return id
}

// bestSplit scans every feature in presorted order. Ties keep the earliest candidate.
func (g *grower) bestSplit(members []int, total float64) (splitCandidate, bool) {
	for i := range g.inNode {
		g.inNode[i] = false
	}
	for _, i := range members {
		g.inNode[i] = true
	}

	n := float64(len(members))
	lambda := g.params.Lambda
	parent := total * total / (n + lambda)
	minLeaf := g.params.MinLeaf

	best := splitCandidate{gain: 1e-12}
	found := false
	for f, order := range g.order {
		leftSum, leftN := 0.0, 0
		prev := -1
		for _, i := range order {
			if !g.inNode[i] {
				continue
			}
			if prev >= 0 && leftN >= minLeaf && len(members)-leftN >= minLeaf && g.x[i][f] > g.x[prev][f] {
				rightSum := total - leftSum
				gain := leftSum*leftSum/(float64(leftN)+lambda) +
					rightSum*rightSum/(n-float64(leftN)+lambda) - parent
				if gain > best.gain {
					best = splitCandidate{feature: f, threshold: (g.x[prev][f] + g.x[i][f]) / 2, gain: gain}
					found = true
				}
			}
			leftSum += g.residue[i]
			leftN++
			prev = i
		}
	}
	return best, found
}
