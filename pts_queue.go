package avplayer

import "container/heap"

// ptsQueue holds timestamps of packets a decoder has consumed but not yet
// produced a picture for. Decoders emit pictures in presentation order, so
// each output picture takes the smallest pending timestamp.
type ptsQueue []int64

func (q ptsQueue) Len() int           { return len(q) }
func (q ptsQueue) Less(i, j int) bool { return q[i] < q[j] }
func (q ptsQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *ptsQueue) Push(x any)        { *q = append(*q, x.(int64)) }

func (q *ptsQueue) Pop() any {
	old := *q
	n := len(old)
	v := old[n-1]
	*q = old[:n-1]
	return v
}

func (q *ptsQueue) push(pts int64) { heap.Push(q, pts) }

// popMin removes the smallest timestamp. ok is false when the queue is empty.
func (q *ptsQueue) popMin() (pts int64, ok bool) {
	if q.Len() == 0 {
		return 0, false
	}
	return heap.Pop(q).(int64), true
}

// remove drops one occurrence of pts, used when a packet fails to decode.
func (q *ptsQueue) remove(pts int64) {
	for i, v := range *q {
		if v == pts {
			heap.Remove(q, i)
			return
		}
	}
}

func (q *ptsQueue) reset() { *q = (*q)[:0] }
