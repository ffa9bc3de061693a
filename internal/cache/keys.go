package cache

import (
	"fmt"

	"github.com/google/uuid"
)

// NightlyLockKey is the advisory lock preventing overlapping scheduler runs.
const NightlyLockKey = "lock:nightly"

func ShardEmailKey(jobBatchID uuid.UUID, batchNumber int) string {
	return fmt.Sprintf("email:shard:%s:%d", jobBatchID, batchNumber)
}
