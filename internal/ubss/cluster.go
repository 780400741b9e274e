package ubss

import (
	"math"
	"math/cmplx"
)

// ClusterParams configures the density-based clustering of feature vectors.
type ClusterParams struct {
	Eps    float64 // neighbourhood radius in feature space
	MinPts int     // minimum points to form a core cluster
}

// epsFromAngle derives a clustering radius from an angular tolerance in
// degrees: the chord length subtended on the unit hypersphere.
func epsFromAngle(tolDegrees float64) float64 {
	return 2 * math.Sin(tolDegrees*math.Pi/180/2)
}

// dbscan labels feature vectors by density connectivity. Labels are cluster
// IDs starting at 1; -1 marks noise. Region queries are brute force: feature
// sets are modest (retained bins only) and the space is high-dimensional, so
// a spatial grid buys nothing here.
func dbscan(points [][]float64, eps float64, minPts int) ([]int, int) {
	n := len(points)
	labels := make([]int, n) // 0 = unvisited
	clusterID := 0
	eps2 := eps * eps

	regionQuery := func(idx int) []int {
		var neighbors []int
		p := points[idx]
		for j, q := range points {
			var d2 float64
			for k := range p {
				d := p[k] - q[k]
				d2 += d * d
			}
			if d2 <= eps2 {
				neighbors = append(neighbors, j)
			}
		}
		return neighbors
	}

	for i := 0; i < n; i++ {
		if labels[i] != 0 {
			continue
		}
		neighbors := regionQuery(i)
		if len(neighbors) < minPts {
			labels[i] = -1
			continue
		}

		clusterID++
		labels[i] = clusterID

		// Queue-based expansion; noise points absorbed as border points.
		for j := 0; j < len(neighbors); j++ {
			idx := neighbors[j]
			if labels[idx] == -1 {
				labels[idx] = clusterID
			}
			if labels[idx] != 0 {
				continue
			}
			labels[idx] = clusterID
			more := regionQuery(idx)
			if len(more) >= minPts {
				neighbors = append(neighbors, more...)
			}
		}
	}

	return labels, clusterID
}

// clusterFeatures groups feature vectors and returns the mean feature vector
// of each non-noise cluster. An empty result means no clusters were found.
func clusterFeatures(points [][]float64, params ClusterParams) [][]float64 {
	if len(points) == 0 {
		return nil
	}
	labels, nClusters := dbscan(points, params.Eps, params.MinPts)
	if nClusters == 0 {
		return nil
	}

	dim := len(points[0])
	sums := make([][]float64, nClusters)
	counts := make([]int, nClusters)
	for i := range sums {
		sums[i] = make([]float64, dim)
	}
	for i, label := range labels {
		if label <= 0 {
			continue
		}
		c := label - 1
		counts[c]++
		for k, v := range points[i] {
			sums[c][k] += v
		}
	}

	means := make([][]float64, 0, nClusters)
	for c := 0; c < nClusters; c++ {
		if counts[c] == 0 {
			continue
		}
		inv := 1 / float64(counts[c])
		for k := range sums[c] {
			sums[c][k] *= inv
		}
		means = append(means, sums[c])
	}
	return means
}

// centroidResponses decomposes mean feature vectors back into gain and phase
// and recombines them as complex per-sensor response vectors gain*exp(i*phase),
// with the gain normalized to unit norm.
func centroidResponses(means [][]float64, nSensors int) [][]complex128 {
	responses := make([][]complex128, 0, len(means))
	for _, m := range means {
		gain := make([]float64, nSensors)
		var norm float64
		for i := 0; i < nSensors; i++ {
			gain[i] = m[i]
			norm += gain[i] * gain[i]
		}
		norm = math.Sqrt(norm)

		resp := make([]complex128, nSensors)
		for i := 0; i < nSensors; i++ {
			g := 0.0
			if norm != 0 {
				g = gain[i] / norm
			}
			phase := math.Atan2(m[2*nSensors+i], m[nSensors+i])
			resp[i] = complex(g, 0) * cmplx.Exp(complex(0, phase))
		}
		responses = append(responses, resp)
	}
	return responses
}
