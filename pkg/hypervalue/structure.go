package hypervalue

import "sort"

// reconstructFunc rebuilds one node of a flattened template from the slice
// of sampled values belonging to it.
type reconstructFunc func(args []interface{}) interface{}

// Flatten walks a nested config template (maps, slices, *HyperValue
// leaves, or plain constants) and returns a reconstruct function plus the
// ordered list of HyperValue leaves discovered during the walk. Calling
// reconstruct with one sampled value per leaf (in the same order) rebuilds
// the template with every HyperValue replaced by its sampled value.
//
// Map keys are visited in sorted order so the leaf ordering, and hence the
// flat vector layout every session relies on, is deterministic across runs
// that share the same template shape.
func Flatten(template interface{}) (func([]interface{}) interface{}, []*HyperValue) {
	fn, items := flattenRaw(template)
	return func(args []interface{}) interface{} { return fn(args) }, items
}

func flattenRaw(vs interface{}) (reconstructFunc, []*HyperValue) {
	switch t := vs.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		subFuncs := make([]reconstructFunc, len(keys))
		subCounts := make([]int, len(keys))
		var allItems []*HyperValue
		for i, k := range keys {
			f, items := flattenRaw(t[k])
			subFuncs[i] = f
			subCounts[i] = len(items)
			allItems = append(allItems, items...)
		}

		fn := func(args []interface{}) interface{} {
			result := make(map[string]interface{}, len(keys))
			offset := 0
			for i, k := range keys {
				result[k] = subFuncs[i](args[offset : offset+subCounts[i]])
				offset += subCounts[i]
			}
			return result
		}
		return fn, allItems

	case []interface{}:
		subFuncs := make([]reconstructFunc, len(t))
		subCounts := make([]int, len(t))
		var allItems []*HyperValue
		for i, item := range t {
			f, items := flattenRaw(item)
			subFuncs[i] = f
			subCounts[i] = len(items)
			allItems = append(allItems, items...)
		}

		fn := func(args []interface{}) interface{} {
			result := make([]interface{}, len(t))
			offset := 0
			for i := range t {
				result[i] = subFuncs[i](args[offset : offset+subCounts[i]])
				offset += subCounts[i]
			}
			return result
		}
		return fn, allItems

	case *HyperValue:
		return func(args []interface{}) interface{} { return args[0] }, []*HyperValue{t}

	default:
		return func(args []interface{}) interface{} { return t }, nil
	}
}
