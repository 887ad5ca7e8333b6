package mask

import "github.com/samber/lo"

// LabelSet 需要保留为前景的标签集合
type LabelSet struct {
	labels []string
	set    map[string]struct{}
}

func NewLabelSet(labels ...string) LabelSet {
	uniq := lo.Uniq(lo.Compact(labels))
	return LabelSet{
		labels: uniq,
		set:    lo.SliceToMap(uniq, func(l string) (string, struct{}) { return l, struct{}{} }),
	}
}

func (s LabelSet) Contains(label string) bool {
	_, ok := s.set[label]
	return ok
}

func (s LabelSet) Labels() []string {
	return append([]string(nil), s.labels...)
}

func (s LabelSet) Len() int {
	return len(s.labels)
}

// Unknown 返回模型标签表里不存在的目标标签
func (s LabelSet) Unknown(known []string) []string {
	return lo.Without(s.labels, known...)
}

// selected 按模型标签表顺序标记哪些类别是目标
func (s LabelSet) selected(modelLabels []string) []bool {
	return lo.Map(modelLabels, func(l string, _ int) bool { return s.Contains(l) })
}
