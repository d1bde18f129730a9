// Package cluster groups surviving risk points into hotspots with DBSCAN.
package cluster

import (
	"cmp"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/quadtree"
)

const (
	DefaultEps        = 0.004 // degrees, ~440 m
	DefaultMinSamples = 5

	Noise = -1
)

// Point is a clustering input. Risk does not affect density; it only breaks
// ties in the canonical visit order.
type Point struct {
	Lat  float64
	Lng  float64
	Risk float64
}

type indexed struct {
	idx int
	pt  orb.Point
}

func (i indexed) Point() orb.Point { return i.pt }

// DBSCAN labels each point with a cluster id (0..k-1) or Noise. A point is a
// neighbour of another when their planar degree distance is <= eps; a point
// counts as its own neighbour towards minSamples.
//
// Points are visited in (lat, lng, risk) order and neighbour lists are
// expanded in that same order, so the clusters produced do not depend on the
// order of the input slice. Label numbers follow the canonical order too.
func DBSCAN(points []Point, eps float64, minSamples int) []int {
	n := len(points)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = Noise
	}
	if n == 0 {
		return labels
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		pa, pb := points[a], points[b]
		if c := cmp.Compare(pa.Lat, pb.Lat); c != 0 {
			return c
		}
		if c := cmp.Compare(pa.Lng, pb.Lng); c != 0 {
			return c
		}
		return cmp.Compare(pa.Risk, pb.Risk)
	})
	rank := make([]int, n)
	for r, i := range order {
		rank[i] = r
	}

	mp := make(orb.MultiPoint, n)
	for i, p := range points {
		mp[i] = orb.Point{p.Lng, p.Lat}
	}
	qt := quadtree.New(mp.Bound().Pad(eps))
	for i, p := range mp {
		// Every point lies inside the padded bound, so Add cannot fail.
		_ = qt.Add(indexed{idx: i, pt: p})
	}

	neighbours := make([][]int, n)
	var buf []orb.Pointer
	r := eps * (1 + 1e-9) // keep points at exactly eps inside the box
	for i, p := range mp {
		box := orb.Bound{
			Min: orb.Point{p[0] - r, p[1] - r},
			Max: orb.Point{p[0] + r, p[1] + r},
		}
		buf = qt.InBound(buf[:0], box)
		nb := make([]int, 0, len(buf))
		for _, c := range buf {
			it := c.(indexed)
			if planar.Distance(p, it.pt) <= eps {
				nb = append(nb, it.idx)
			}
		}
		slices.SortFunc(nb, func(a, b int) int { return cmp.Compare(rank[a], rank[b]) })
		neighbours[i] = nb
	}

	core := make([]bool, n)
	for i, nb := range neighbours {
		core[i] = len(nb) >= minSamples
	}

	next := 0
	var stack []int
	for _, i := range order {
		if labels[i] != Noise || !core[i] {
			continue
		}
		labels[i] = next
		stack = append(stack[:0], i)
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, j := range neighbours[cur] {
				if labels[j] != Noise {
					continue
				}
				labels[j] = next
				if core[j] {
					stack = append(stack, j)
				}
			}
		}
		next++
	}
	return labels
}

// Groups collects member indices per cluster label, dropping noise. Members
// keep input order.
func Groups(labels []int) [][]int {
	var groups [][]int
	for i, l := range labels {
		if l == Noise {
			continue
		}
		for len(groups) <= l {
			groups = append(groups, nil)
		}
		groups[l] = append(groups[l], i)
	}
	return groups
}
