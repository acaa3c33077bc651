package task

// MergeMetadata deep-merges a patch document into a base document and returns
// a new map. Nested maps merge recursively, every other value type in the
// patch replaces the base value wholesale. Neither input is mutated.
func MergeMetadata(base map[string]any, patch map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(patch))
	for key, value := range base {
		merged[key] = value
	}
	if patch == nil {
		return merged
	}

	for key, value := range patch {
		patchMap, patchIsMap := value.(map[string]any)
		baseMap, baseIsMap := merged[key].(map[string]any)
		if patchIsMap && baseIsMap {
			merged[key] = MergeMetadata(baseMap, patchMap)
			continue
		}
		merged[key] = value
	}
	return merged
}
