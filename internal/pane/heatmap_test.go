package pane

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const heatmap2x3 = `{"win":"h","data":[{"type":"heatmap","z":[[1,2,3],[4,5,6]]}]}`

func TestHeatmapAppendRowMismatchLeavesPane(t *testing.T) {
	p := mustBuild(t, heatmap2x3)
	_, err := Update(p, decodeArgs(t, `{"updateDir":"appendRow","data":[{"type":"heatmap","z":[[7,8,9,10]]}]}`))
	if !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
	if diff := cmp.Diff([]any{[]any{1.0, 2.0, 3.0}, []any{4.0, 5.0, 6.0}}, p.Traces()[0]["z"]); diff != "" {
		t.Fatalf("pane changed (-want +got):\n%s", diff)
	}
}

func TestHeatmapDirectional(t *testing.T) {
	cases := []struct {
		name string
		args string
		want any
	}{
		{
			name: "append row",
			args: `{"updateDir":"appendRow","data":[{"z":[[7,8,9]]}]}`,
			want: []any{[]any{1.0, 2.0, 3.0}, []any{4.0, 5.0, 6.0}, []any{7.0, 8.0, 9.0}},
		},
		{
			name: "prepend row flat",
			args: `{"updateDir":"prependRow","data":[{"z":[0,0,0]}]}`,
			want: []any{[]any{0.0, 0.0, 0.0}, []any{1.0, 2.0, 3.0}, []any{4.0, 5.0, 6.0}},
		},
		{
			name: "append column",
			args: `{"updateDir":"appendColumn","data":[{"z":[[9],[9]]}]}`,
			want: []any{[]any{1.0, 2.0, 3.0, 9.0}, []any{4.0, 5.0, 6.0, 9.0}},
		},
		{
			name: "prepend column flat",
			args: `{"updateDir":"prependColumn","data":[{"z":[0,1]}]}`,
			want: []any{[]any{0.0, 1.0, 2.0, 3.0}, []any{1.0, 4.0, 5.0, 6.0}},
		},
		{
			name: "replace",
			args: `{"updateDir":"replace","data":[{"z":[[1]]}]}`,
			want: []any{[]any{1.0}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := mustBuild(t, heatmap2x3)
			next, err := Update(p, decodeArgs(t, tc.args))
			if err != nil {
				t.Fatalf("Update() error = %v", err)
			}
			if diff := cmp.Diff(tc.want, next.Traces()[0]["z"]); diff != "" {
				t.Fatalf("z mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestHeatmapColumnMismatch(t *testing.T) {
	p := mustBuild(t, heatmap2x3)
	_, err := Update(p, decodeArgs(t, `{"updateDir":"appendColumn","data":[{"z":[[1],[2],[3]]}]}`))
	if !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
}

func TestHeatmapAxisNames(t *testing.T) {
	p := mustBuild(t, `{"data":[{"type":"heatmap","z":[[1,2]],"x":["a","b"],"y":["r1"]}]}`)

	next, err := Update(p, decodeArgs(t, `{"updateDir":"appendColumn","data":[{"z":[[3]],"x":["c"]}]}`))
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if diff := cmp.Diff([]any{"a", "b", "c"}, next.Traces()[0]["x"]); diff != "" {
		t.Fatalf("x names (-want +got):\n%s", diff)
	}

	if _, err := Update(p, decodeArgs(t, `{"updateDir":"appendColumn","data":[{"z":[[3]],"x":["a"]}]}`)); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected overlap error, got %v", err)
	}
	if _, err := Update(p, decodeArgs(t, `{"updateDir":"appendColumn","data":[{"z":[[3]]}]}`)); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected presence mismatch error, got %v", err)
	}

	rows, err := Update(p, decodeArgs(t, `{"updateDir":"prependRow","data":[{"z":[[0,0]],"y":["r0"]}]}`))
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if diff := cmp.Diff([]any{"r0", "r1"}, rows.Traces()[0]["y"]); diff != "" {
		t.Fatalf("y names (-want +got):\n%s", diff)
	}
}

func TestHeatmapRemoveThenSeed(t *testing.T) {
	p := mustBuild(t, heatmap2x3)
	removed, err := Update(p, Args{UpdateDir: DirRemove})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if len(removed.Traces()) != 0 {
		t.Fatalf("expected empty data, got %v", removed.Traces())
	}
	seeded, err := Update(removed, decodeArgs(t, `{"data":[{"type":"heatmap","z":[[5]]}]}`))
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if diff := cmp.Diff([]any{[]any{5.0}}, seeded.Traces()[0]["z"]); diff != "" {
		t.Fatalf("seeded z (-want +got):\n%s", diff)
	}
}

func TestHeatmapRequiresUpdateDir(t *testing.T) {
	p := mustBuild(t, heatmap2x3)
	if _, err := Update(p, decodeArgs(t, `{"data":[{"z":[[1,2,3]]}]}`)); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
	if _, err := Update(p, decodeArgs(t, `{"updateDir":"sideways","data":[{"z":[[1,2,3]]}]}`)); !errors.Is(err, ErrUnsupportedUpdate) {
		t.Fatalf("expected ErrUnsupportedUpdate, got %v", err)
	}
}
