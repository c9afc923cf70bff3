// lockmap is a sharded map of sector locks.
//
// The API is as if LockMap held a lock for every sector number;
// LockMap.Acquire(s) acquires the lock for s and LockMap.Release(s) releases
// it. A volume locks a file's header sector to serialize every mutation of
// that file's block map.
//
// Only held (or waited-for) locks have state. Shard i keeps the state of
// every sector s with s % NSHARD == i, so unrelated files rarely contend on
// the same shard mutex.
package lockmap

import (
	"sync"

	"github.com/mit-pdos/go-filehdr/common"
)

type lockState struct {
	held    bool
	cond    *sync.Cond
	waiters uint64
}

type lockShard struct {
	mu    *sync.Mutex
	state map[common.Snum]*lockState
}

func mkLockShard() *lockShard {
	return &lockShard{
		mu:    new(sync.Mutex),
		state: make(map[common.Snum]*lockState),
	}
}

func (shard *lockShard) acquire(s common.Snum) {
	shard.mu.Lock()
	st, ok := shard.state[s]
	if !ok {
		st = &lockState{cond: sync.NewCond(shard.mu)}
		shard.state[s] = st
	}
	for st.held {
		st.waiters += 1
		st.cond.Wait()
		st.waiters -= 1
	}
	st.held = true
	shard.mu.Unlock()
}

func (shard *lockShard) release(s common.Snum) {
	shard.mu.Lock()
	st, ok := shard.state[s]
	if !ok || !st.held {
		panic("release of unheld sector lock")
	}
	st.held = false
	if st.waiters > 0 {
		st.cond.Signal()
	} else {
		delete(shard.state, s)
	}
	shard.mu.Unlock()
}

func (shard *lockShard) held(s common.Snum) bool {
	shard.mu.Lock()
	st, ok := shard.state[s]
	h := ok && st.held
	shard.mu.Unlock()
	return h
}

const NSHARD uint64 = 43

type LockMap struct {
	shards []*lockShard
}

func MkLockMap() *LockMap {
	shards := make([]*lockShard, NSHARD)
	for i := range shards {
		shards[i] = mkLockShard()
	}
	return &LockMap{shards: shards}
}

func (lmap *LockMap) shard(s common.Snum) *lockShard {
	return lmap.shards[uint64(s)%NSHARD]
}

func (lmap *LockMap) Acquire(s common.Snum) {
	lmap.shard(s).acquire(s)
}

func (lmap *LockMap) Release(s common.Snum) {
	lmap.shard(s).release(s)
}

// Held reports whether some caller holds the lock for s.
func (lmap *LockMap) Held(s common.Snum) bool {
	return lmap.shard(s).held(s)
}
