package cache

import "fmt"

// JobSnapshotKey is the cache key for one job's serialized snapshot.
func JobSnapshotKey(jobID string) string {
	return fmt.Sprintf("job:%s", jobID)
}
