// Package compare builds the synthetic environment that overlays
// like-titled plot panes from several envs.
package compare

import (
	"fmt"
	"html"
	"sort"
	"strings"

	"panehub/server/internal/env"
	"panehub/server/internal/pane"
)

const (
	LegendID    = "window_compare_legend"
	legendTitle = "compare_legend"
	idSuffix    = "_compare"
)

// Result is the compare view: the base env's reload geometry and the panes
// to replay, in order.
type Result struct {
	Reload map[string]any
	Panes  []*pane.Pane
}

// SplitIDs parses a "+"-joined compare path into escaped env ids, dropping
// empty members.
func SplitIDs(joined string) []string {
	parts := strings.Split(joined, "+")
	ids := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		ids = append(ids, env.EscapeID(part))
	}
	return ids
}

// Build overlays envs, given in ordinal order. The first env is the base.
// A base plot pane whose first trace has no name is never merged; only
// titles found in at least two envs survive. Every merged trace name gets
// the "{ordinal}_" prefix of its env.
func Build(envs []*env.Env) Result {
	res := Result{Reload: map[string]any{}}
	if len(envs) == 0 {
		res.Panes = []*pane.Pane{legendPane(envs)}
		return res
	}
	base := envs[0]
	if reload, ok := pane.CloneValue(base.Reload).(map[string]any); ok && reload != nil {
		res.Reload = reload
	}

	type merged struct {
		pane    *pane.Pane
		compare bool
	}
	byTitle := map[string]*merged{}
	order := make([]*merged, 0)

	for _, p := range base.Panes() {
		if p.Type != pane.TypePlot || p.Title == "" || !firstTraceNamed(p) {
			continue
		}
		if _, dup := byTitle[p.Title]; dup {
			continue
		}
		clone := p.Clone()
		clone.ID = p.ID + idSuffix
		content := clone.Content.(map[string]any)
		layout, ok := content["layout"].(map[string]any)
		if !ok {
			layout = map[string]any{}
			content["layout"] = layout
		}
		layout["showlegend"] = true
		for _, trace := range clone.Traces() {
			trace["name"] = prefixed(0, trace["name"])
		}
		m := &merged{pane: clone}
		byTitle[p.Title] = m
		order = append(order, m)
	}

	for ordinal, e := range envs[1:] {
		for _, p := range e.Panes() {
			if p.Type != pane.TypePlot {
				continue
			}
			m, ok := byTitle[p.Title]
			if !ok {
				continue
			}
			content := m.pane.Content.(map[string]any)
			data, _ := content["data"].([]any)
			for _, trace := range p.Traces() {
				overlay := pane.CloneValue(trace).(map[string]any)
				overlay["name"] = prefixed(ordinal+1, trace["name"])
				data = append(data, overlay)
			}
			content["data"] = data
			m.compare = true
		}
	}

	for _, m := range order {
		if !m.compare {
			continue
		}
		if m.pane.Extra == nil {
			m.pane.Extra = map[string]any{}
		}
		m.pane.Extra["has_compare"] = true
		res.Panes = append(res.Panes, m.pane)
	}
	sort.SliceStable(res.Panes, func(i, j int) bool { return res.Panes[i].I < res.Panes[j].I })
	legend := legendPane(envs)
	if n := len(res.Panes); n > 0 {
		legend.I = res.Panes[n-1].I + 1
	}
	res.Panes = append(res.Panes, legend)
	return res
}

func firstTraceNamed(p *pane.Pane) bool {
	traces := p.Traces()
	if len(traces) == 0 {
		return false
	}
	_, ok := traces[0]["name"]
	return ok
}

func prefixed(ordinal int, name any) string {
	if name == nil {
		return fmt.Sprintf("%d_", ordinal)
	}
	return fmt.Sprintf("%d_%v", ordinal, name)
}

func legendPane(envs []*env.Env) *pane.Pane {
	rows := make([]string, 0, len(envs))
	for i, e := range envs {
		rows = append(rows, fmt.Sprintf("<tr> <td> %s </td> <td> %d </td> </tr>", html.EscapeString(e.ID), i))
	}
	table := "<style>\n    table, th, td {\n        border: 1px solid black;\n    }\n    </style>\n" +
		"    <table> " + strings.Join(rows, " ") + " </table>"
	return &pane.Pane{
		ID:        LegendID,
		ContentID: legendTitle,
		Type:      pane.TypeText,
		Title:     legendTitle,
		Inflate:   true,
		Content:   table,
		Extra: map[string]any{
			"layout":      map[string]any{"title": legendTitle},
			"has_compare": true,
		},
	}
}
