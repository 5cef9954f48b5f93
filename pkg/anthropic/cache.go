package anthropic

// BuildCachedSystemBlocks constructs a system block with an ephemeral cache
// breakpoint. Scanner prompts are identical across calls, so every scan
// after the first within the TTL reads the instructions from cache.
func BuildCachedSystemBlocks(text, ttl string) []SystemBlock {
	return []SystemBlock{
		{
			Text:         text,
			CacheControl: &CacheControl{TTL: ttl},
		},
	}
}
