package db

import "time"

type mark struct {
	key string
	at  time.Time
}

// markQueue is a min-heap of ledger marks ordered by event instant, so the
// oldest marks are evicted first.
type markQueue []*mark

func (q markQueue) Len() int {
	return len(q)
}

func (q markQueue) Less(i, j int) bool {
	return q[i].at.Before(q[j].at)
}

func (q markQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
}

func (q *markQueue) Push(x any) {
	mk, ok := x.(*mark)
	if !ok {
		return
	}
	*q = append(*q, mk)
}

func (q *markQueue) Pop() any {
	old := *q
	n := len(old)
	if n == 0 {
		return nil
	}

	mk := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return mk
}
