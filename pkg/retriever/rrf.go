package retriever

import "sort"

// DefaultRRFK is the reciprocal rank fusion constant. 60 is the value
// from the original RRF paper and dampens the head of each list enough
// that agreement across lists beats a single high rank.
const DefaultRRFK = 60

// Fuse merges ranked lists by reciprocal rank fusion:
//
//	score(d) = sum over lists containing d of 1 / (k + rank)
//
// with rank starting at 1. Documents are deduplicated by SourceID; the
// first occurrence's payload wins. Output is sorted by score
// descending, ties broken by entity type then lower entity id. Any
// input document without
// a SourceID fails the whole fusion with ErrMissingID.
func Fuse(k int, lists ...[]Doc) ([]Doc, error) {
	if k <= 0 {
		k = DefaultRRFK
	}
	merged := make(map[string]*Doc)
	order := make([]string, 0)

	for _, list := range lists {
		for rank, d := range list {
			if d.SourceID == "" {
				return nil, ErrMissingID
			}
			contribution := 1.0 / float64(k+rank+1)
			if existing, ok := merged[d.SourceID]; ok {
				existing.RRFScore += contribution
				for name, s := range d.SubScores {
					if _, taken := existing.SubScores[name]; !taken {
						existing.SubScores[name] = s
					}
				}
				continue
			}
			kept := d
			kept.RRFScore = contribution
			if kept.SubScores == nil {
				kept.SubScores = make(map[string]float64)
			}
			merged[d.SourceID] = &kept
			order = append(order, d.SourceID)
		}
	}

	out := make([]Doc, 0, len(order))
	for _, id := range order {
		out = append(out, *merged[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RRFScore != out[j].RRFScore {
			return out[i].RRFScore > out[j].RRFScore
		}
		return lessSourceID(out[i].SourceID, out[j].SourceID)
	})
	return out, nil
}
