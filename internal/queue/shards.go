package queue

// ShardSize returns how many prompts travel in one shard for a submission of
// total prompts. Small submissions go out whole, mid-sized ones split in
// fives, anything larger splits in tens.
func ShardSize(total int) int {
	switch {
	case total < 5:
		return total
	case total <= 10:
		return 5
	default:
		return 10
	}
}

// SplitPrompts cuts prompts into consecutive shards of ShardSize(len). The
// last shard may be short.
func SplitPrompts(prompts []ShardPrompt) [][]ShardPrompt {
	size := ShardSize(len(prompts))
	if size == 0 {
		return nil
	}
	var shards [][]ShardPrompt
	for start := 0; start < len(prompts); start += size {
		end := start + size
		if end > len(prompts) {
			end = len(prompts)
		}
		shards = append(shards, prompts[start:end])
	}
	return shards
}
