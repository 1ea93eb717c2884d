package mutate

import "sort"

// patch replaces src[start:end] with text. Insertions have start == end.
type patch struct {
	start, end int
	text       string
	seq        int
}

func (p patch) isDelete() bool { return p.end > p.start }

// applyPatches applies patches against the original buffer in reverse offset
// order so earlier offsets stay valid. Overlapping deletions are merged and
// insertions falling strictly inside a deleted range are dropped. Insertions
// sharing an offset keep their submission order.
func applyPatches(src []byte, patches []patch) []byte {
	out := append([]byte(nil), src...)
	if len(patches) == 0 {
		return out
	}

	var dels, ins []patch
	for _, p := range patches {
		if p.isDelete() {
			dels = append(dels, p)
		} else if p.text != "" {
			ins = append(ins, p)
		}
	}
	dels = mergeDeletes(dels)

	all := append([]patch(nil), dels...)
	for _, p := range ins {
		inside := false
		for _, d := range dels {
			if d.start < p.start && p.start < d.end {
				inside = true
				break
			}
		}
		if !inside {
			all = append(all, p)
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if a.start != b.start {
			return a.start > b.start
		}
		if a.isDelete() != b.isDelete() {
			return a.isDelete()
		}
		return a.seq > b.seq
	})

	for _, p := range all {
		buf := make([]byte, 0, len(out)-(p.end-p.start)+len(p.text))
		buf = append(buf, out[:p.start]...)
		buf = append(buf, p.text...)
		buf = append(buf, out[p.end:]...)
		out = buf
	}
	return out
}

func mergeDeletes(dels []patch) []patch {
	if len(dels) < 2 {
		return dels
	}
	sort.Slice(dels, func(i, j int) bool { return dels[i].start < dels[j].start })
	merged := []patch{dels[0]}
	for _, d := range dels[1:] {
		last := &merged[len(merged)-1]
		if d.start < last.end {
			if d.end > last.end {
				last.end = d.end
			}
			continue
		}
		merged = append(merged, d)
	}
	return merged
}
