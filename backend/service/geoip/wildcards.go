package geoip

import (
	"fmt"
	"sort"
)

// Range 一段连续的 IPv4 地址区间（整数形式，闭区间）
type Range struct {
	Start uint32
	End   uint32
}

func octets(ip uint32) (byte, byte, byte, byte) {
	return byte(ip >> 24), byte(ip >> 16), byte(ip >> 8), byte(ip)
}

// 同一 A 段下不同 B 值达到该数量时，整组 A.B.* 坍缩为一条 A.*
const collapseThreshold = 250

// ConvertRangesToWildcards 把 IP 区间集合压缩成 OS 代理例外列表用的通配符集合。
//
// 每个区间按端点八位组逐级判断全跨度（0-255），在最粗的可用粒度上产出
// A.* / A.B.* / A.B.C.* 通配符；部分 C 段按 C 逐个展开（宁可多放行）。
// 跨 A 段的区间直接丢弃。产出后对 A.B.* 做按 A 分组坍缩，最终去重并按
// 字典序输出。纯函数，无副作用。
func ConvertRangesToWildcards(ranges []Range) []string {
	aStars := make(map[string]struct{})
	abGroups := make(map[byte]map[byte]struct{})
	abcStars := make(map[string]struct{})

	for _, r := range ranges {
		s1, s2, s3, s4 := octets(r.Start)
		e1, e2, e3, e4 := octets(r.End)

		if s1 != e1 {
			// 跨 A 段的区间不做拆分，直接丢弃
			continue
		}

		switch {
		case s2 == 0 && e2 == 255 && s3 == 0 && e3 == 255 && s4 == 0 && e4 == 255:
			aStars[fmt.Sprintf("%d.*", s1)] = struct{}{}
		case s2 == e2 && s3 == 0 && e3 == 255 && s4 == 0 && e4 == 255:
			group := abGroups[s1]
			if group == nil {
				group = make(map[byte]struct{})
				abGroups[s1] = group
			}
			group[s2] = struct{}{}
		case s2 == e2 && s3 == e3 && s4 == 0 && e4 == 255:
			abcStars[fmt.Sprintf("%d.%d.%d.*", s1, s2, s3)] = struct{}{}
		default:
			// 部分 C 段：逐个 C 展开，范围放大到整个 C 段。
			// B 固定取起始端点：跨多个 B 但未铺满整段的区间只覆盖起始 B，
			// 不对后续 B 段外推
			for c := int(s3); c <= int(e3); c++ {
				abcStars[fmt.Sprintf("%d.%d.%d.*", s1, s2, c)] = struct{}{}
			}
		}
	}

	result := make(map[string]struct{}, len(aStars)+len(abcStars))
	for w := range aStars {
		result[w] = struct{}{}
	}
	for w := range abcStars {
		result[w] = struct{}{}
	}
	for a, bs := range abGroups {
		if len(bs) >= collapseThreshold {
			result[fmt.Sprintf("%d.*", a)] = struct{}{}
			continue
		}
		for b := range bs {
			result[fmt.Sprintf("%d.%d.*", a, b)] = struct{}{}
		}
	}

	out := make([]string, 0, len(result))
	for w := range result {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}
