package shared

import (
	"hash/fnv"

	"github.com/google/uuid"
)

// PostingLockKey derives the advisory lock key serialising ledger writes for
// a tenant. Posting takes the shared flavour; period close and ledger rebuild
// take it exclusively so they observe a quiescent ledger.
func PostingLockKey(tenant uuid.UUID) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte("ledger:post:"))
	_, _ = h.Write(tenant[:])
	return int64(h.Sum64())
}
