package retriever

import (
	"errors"
	"math"
	"testing"
)

func docList(ids ...string) []Doc {
	out := make([]Doc, len(ids))
	for i, id := range ids {
		out[i] = Doc{SourceID: id, Text: "text-" + id}
	}
	return out
}

func TestFuseTwoLists(t *testing.T) {
	lv := docList("A", "B", "C")
	lk := docList("B", "D")

	fused, err := Fuse(60, lv, lk)
	if err != nil {
		t.Fatalf("Fuse() error = %v", err)
	}

	// B appears in both lists (ranks 2 and 1): 1/62 + 1/61. The rest
	// score by their single rank, so D (1/62) edges out C (1/63).
	wantOrder := []string{"B", "A", "D", "C"}
	if len(fused) != len(wantOrder) {
		t.Fatalf("fused %d docs, want %d", len(fused), len(wantOrder))
	}
	for i, id := range wantOrder {
		if fused[i].SourceID != id {
			t.Errorf("position %d = %s, want %s", i, fused[i].SourceID, id)
		}
	}

	wantScores := map[string]float64{
		"A": 1.0 / 61,
		"B": 1.0/62 + 1.0/61,
		"C": 1.0 / 63,
		"D": 1.0 / 62,
	}
	for _, d := range fused {
		if diff := math.Abs(d.RRFScore - wantScores[d.SourceID]); diff > 1e-12 {
			t.Errorf("%s score = %v, want %v", d.SourceID, d.RRFScore, wantScores[d.SourceID])
		}
	}
}

func TestFuseSingleListScore(t *testing.T) {
	fused, err := Fuse(60, docList("X", "Y"))
	if err != nil {
		t.Fatalf("Fuse() error = %v", err)
	}
	if got := fused[0].RRFScore; math.Abs(got-1.0/61) > 1e-12 {
		t.Errorf("rank-1 score = %v, want 1/61", got)
	}
	if got := fused[1].RRFScore; math.Abs(got-1.0/62) > 1e-12 {
		t.Errorf("rank-2 score = %v, want 1/62", got)
	}
}

func TestFuseTieBreakBySourceID(t *testing.T) {
	// Same rank in disjoint lists gives equal scores; lower id first.
	fused, err := Fuse(60, docList("zeta"), docList("alpha"))
	if err != nil {
		t.Fatalf("Fuse() error = %v", err)
	}
	if fused[0].SourceID != "alpha" || fused[1].SourceID != "zeta" {
		t.Errorf("tie order = [%s, %s], want [alpha, zeta]", fused[0].SourceID, fused[1].SourceID)
	}
}

func TestFuseTieBreakByNumericID(t *testing.T) {
	// Entity keys of one type tie-break on the numeric id, so
	// "project:9" beats "project:10" despite lexicographic order.
	fused, err := Fuse(60, docList("project:10"), docList("project:9"))
	if err != nil {
		t.Fatalf("Fuse() error = %v", err)
	}
	if fused[0].SourceID != "project:9" || fused[1].SourceID != "project:10" {
		t.Errorf("tie order = [%s, %s], want [project:9, project:10]", fused[0].SourceID, fused[1].SourceID)
	}
}

func TestFuseFirstPayloadWins(t *testing.T) {
	lv := []Doc{{SourceID: "A", Text: "vector text", Payload: map[string]any{"leg": "vector"}}}
	lk := []Doc{{SourceID: "A", Text: "lexical text", Payload: map[string]any{"leg": "lexical"}}}

	fused, err := Fuse(60, lv, lk)
	if err != nil {
		t.Fatalf("Fuse() error = %v", err)
	}
	if len(fused) != 1 {
		t.Fatalf("fused %d docs, want 1", len(fused))
	}
	if fused[0].Text != "vector text" || fused[0].Payload["leg"] != "vector" {
		t.Errorf("payload = %+v, want first occurrence", fused[0])
	}
}

func TestFuseMergesSubScores(t *testing.T) {
	lv := []Doc{{SourceID: "A", SubScores: map[string]float64{"vector": 0.91}}}
	lk := []Doc{{SourceID: "A", SubScores: map[string]float64{"lexical": 42}}}

	fused, err := Fuse(60, lv, lk)
	if err != nil {
		t.Fatalf("Fuse() error = %v", err)
	}
	if fused[0].SubScores["vector"] != 0.91 || fused[0].SubScores["lexical"] != 42 {
		t.Errorf("sub scores = %v", fused[0].SubScores)
	}
}

func TestFuseMissingID(t *testing.T) {
	_, err := Fuse(60, []Doc{{SourceID: ""}})
	if !errors.Is(err, ErrMissingID) {
		t.Errorf("error = %v, want ErrMissingID", err)
	}
}

func TestFuseEmptyInputs(t *testing.T) {
	fused, err := Fuse(60)
	if err != nil {
		t.Fatalf("Fuse() error = %v", err)
	}
	if len(fused) != 0 {
		t.Errorf("fused = %v, want empty", fused)
	}
}
