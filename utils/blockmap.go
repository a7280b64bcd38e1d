package utils

import "fmt"

// BlockMap splits the index range [0,MaxIndex) into ParallelDegree
// contiguous buckets with a maximum imbalance of one item. It is used to
// pick the directory rank of a globally numbered entity.
type BlockMap struct {
	MaxIndex       int // MaxIndex is partitioned into ParallelDegree buckets
	ParallelDegree int
	Buckets        [][2]int // Beginning and end index of buckets
}

func NewBlockMap(ParallelDegree, maxIndex int) (bm *BlockMap) {
	if ParallelDegree < 1 {
		panic(fmt.Sprintf("parallel degree must be positive, have %d", ParallelDegree))
	}
	bm = &BlockMap{
		MaxIndex:       maxIndex,
		ParallelDegree: ParallelDegree,
		Buckets:        make([][2]int, ParallelDegree),
	}
	for n := 0; n < ParallelDegree; n++ {
		bm.Buckets[n] = bm.Split1D(n)
	}
	return
}

// Owner returns the bucket holding index k, -1 when k is out of range.
func (bm *BlockMap) Owner(k int) (bucketNum int) {
	if k < 0 || k >= bm.MaxIndex {
		return -1
	}
	// Initial guess
	bucketNum = int(float64(bm.ParallelDegree*k) / float64(bm.MaxIndex))
	bucketNum = min(bucketNum, bm.ParallelDegree-1)
	for !(bm.Buckets[bucketNum][0] <= k && bm.Buckets[bucketNum][1] > k) {
		if bm.Buckets[bucketNum][0] > k {
			bucketNum--
		} else {
			bucketNum++
		}
		if bucketNum == -1 || bucketNum == bm.ParallelDegree {
			return -1
		}
	}
	return
}

func (bm *BlockMap) Range(bucketNum int) (kMin, kMax int) {
	kMin, kMax = bm.Buckets[bucketNum][0], bm.Buckets[bucketNum][1]
	return
}

func (bm *BlockMap) Size(bucketNum int) int {
	k1, k2 := bm.Range(bucketNum)
	return k2 - k1
}

// ToLocal returns the offset of k inside its bucket.
func (bm *BlockMap) ToLocal(k int) (kLocal, bucketNum int) {
	if bucketNum = bm.Owner(k); bucketNum == -1 {
		panic(fmt.Sprintf("index %d outside block map of size %d", k, bm.MaxIndex))
	}
	kLocal = k - bm.Buckets[bucketNum][0]
	return
}

func (bm *BlockMap) ToGlobal(kLocal, bucketNum int) int {
	return bm.Buckets[bucketNum][0] + kLocal
}

func (bm *BlockMap) Split1D(threadNum int) (bucket [2]int) {
	// This routine splits one dimension into ParallelDegree pieces, with a maximum imbalance of one item
	var (
		Npart            = bm.MaxIndex / (bm.ParallelDegree)
		startAdd, endAdd int
		remainder        int
	)
	remainder = bm.MaxIndex % bm.ParallelDegree
	if remainder != 0 { // spread the remainder over the first chunks evenly
		if threadNum+1 > remainder {
			startAdd = remainder
			endAdd = 0
		} else {
			startAdd = threadNum
			endAdd = 1
		}
	}
	bucket[0] = threadNum*Npart + startAdd
	bucket[1] = bucket[0] + Npart + endAdd
	return
}
