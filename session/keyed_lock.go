package session

import (
	"hash/fnv"
	"sync"
)

// =============================================================================
// 🔒 分片键锁
// =============================================================================

// keyedMutex 按键分片的互斥锁。同一键的变更路径串行执行，
// 不同键大概率落在不同分片上并行执行。
type keyedMutex struct {
	shards []sync.Mutex
}

// newKeyedMutex 创建指定分片数的键锁（分片数向上取 2 的幂）
func newKeyedMutex(shards int) *keyedMutex {
	if shards <= 0 {
		shards = 64
	}
	n := 1
	for n < shards {
		n <<= 1
	}
	return &keyedMutex{shards: make([]sync.Mutex, n)}
}

// Lock 锁定键所属分片，返回解锁函数
func (k *keyedMutex) Lock(key string) func() {
	shard := &k.shards[k.index(key)]
	shard.Lock()
	return shard.Unlock
}

func (k *keyedMutex) index(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() & uint32(len(k.shards)-1)
}
