package store

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// EncodeVector 按小端 float32 序列化向量。
func EncodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

// DecodeVector 反序列化 EncodeVector 的结果。
func DecodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}

// Distance 按度量计算距离，越小越近。零向量的余弦距离为 1。
func Distance(m Metric, a, b []float32) float32 {
	switch m {
	case MetricL2:
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return float32(sum)
	case MetricIP:
		return float32(1 - dot(a, b))
	default:
		na, nb := math.Sqrt(dot(a, a)), math.Sqrt(dot(b, b))
		if na == 0 || nb == 0 {
			return 1
		}
		return float32(1 - dot(a, b)/(na*nb))
	}
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// scored 暴力检索的候选。
type scored struct {
	index    int
	distance float32
}

// nearest 返回距离最小的 k 个下标，距离相同时下标小的在前。
func nearest(m Metric, query []float32, vectors [][]float32, k int) []scored {
	all := make([]scored, len(vectors))
	for i, v := range vectors {
		all[i] = scored{index: i, distance: Distance(m, query, v)}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].distance < all[j].distance })
	if k < len(all) {
		all = all[:k]
	}
	return all
}
