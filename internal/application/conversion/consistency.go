package conversion

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// semanticAliases 同一语义参数在载荷中可能使用的字段名
var semanticAliases = map[string][]string{
	"steps":     {"steps", "num_inference_steps"},
	"guidance":  {"guidance", "cfg_scale", "guidance_scale", "cfg"},
	"width":     {"width"},
	"height":    {"height"},
	"sampler":   {"sampler", "sampler_name"},
	"scheduler": {"scheduler"},
	"seed":      {"seed"},
}

// CheckConsistency 比较 payload 与 recommended_settings 中重叠的语义参数，返回冲突描述
func CheckConsistency(payload, recommended map[string]any) []string {
	names := make([]string, 0, len(semanticAliases))
	for name := range semanticAliases {
		names = append(names, name)
	}
	sort.Strings(names)

	var issues []string
	for _, name := range names {
		aliases := semanticAliases[name]
		pv, pIssue := semanticValue(payload, name, aliases)
		rv, rIssue := semanticValue(recommended, name, aliases)
		if pIssue != "" {
			issues = append(issues, "payload: "+pIssue)
		}
		if rIssue != "" {
			issues = append(issues, "recommended_settings: "+rIssue)
		}
		if pv == nil || rv == nil {
			continue
		}
		if !sameValue(pv, rv) {
			issues = append(issues, fmt.Sprintf("%s conflicts: payload=%v recommended_settings=%v", name, pv, rv))
		}
	}
	return issues
}

// semanticValue 读取某语义参数；同一 map 中别名取值不一致也视为冲突
func semanticValue(m map[string]any, name string, aliases []string) (any, string) {
	var found any
	for _, key := range aliases {
		v, ok := m[key]
		if !ok || v == nil {
			continue
		}
		if found == nil {
			found = v
			continue
		}
		if !sameValue(found, v) {
			return found, fmt.Sprintf("%s has conflicting aliases (%v vs %v)", name, found, v)
		}
	}
	return found, ""
}

func sameValue(a, b any) bool {
	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	if aNum && bNum {
		return math.Abs(af-bf) < 1e-9
	}
	if aNum != bNum {
		return false
	}
	as, aStr := a.(string)
	bs, bStr := b.(string)
	if aStr && bStr {
		return strings.EqualFold(strings.TrimSpace(as), strings.TrimSpace(bs))
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
