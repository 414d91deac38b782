package anthropic

// BuildCachedSystemBlocks wraps a system prompt in a single block with a
// 5-minute cache breakpoint. The judge prompt is identical across leads, so
// back-to-back enrichments reuse the cached prefix.
func BuildCachedSystemBlocks(text string) []SystemBlock {
	return []SystemBlock{
		{
			Text: text,
			CacheControl: &CacheControl{
				TTL: "5m",
			},
		},
	}
}
