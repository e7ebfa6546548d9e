// Package visualization renders stored particle graphs in various output formats.
package visualization

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nvandessel/fission/internal/store"
)

// Format specifies the output format for graph rendering.
type Format string

const (
	FormatDOT  Format = "dot"
	FormatJSON Format = "json"
	FormatSeed Format = "seed" // a seed file for another run
)

// ParseFormat validates a --format flag value.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatDOT, FormatJSON, FormatSeed:
		return Format(s), nil
	default:
		return "", fmt.Errorf("invalid format: %q (valid: dot, json, seed)", s)
	}
}

// speciesColors maps particle species to DOT colors.
var speciesColors = map[string]string{
	"electron": "steelblue",
	"positron": "tomato",
	"photon":   "goldenrod",
	"neutron":  "gray70",
	"nucleus":  "mediumseagreen",
	"fragment": "orchid",
}

// vertexInfo is the subset of a stored payload the renderers read.
type vertexInfo struct {
	Species string `json:"species"`
	Energy  int    `json:"energy"`
}

func decode(v store.VertexRecord) vertexInfo {
	var info vertexInfo
	// Payloads that are not particles still render, unlabeled.
	_ = json.Unmarshal(v.Payload, &info)
	return info
}

// RenderDOT produces a Graphviz DOT representation of a snapshot.
func RenderDOT(snap store.Snapshot) string {
	var b strings.Builder
	b.WriteString("digraph fission {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [shape=circle, style=filled, fontname=\"Helvetica\"];\n\n")

	for _, v := range snap.Vertices {
		info := decode(v)
		color := speciesColors[info.Species]
		if color == "" {
			color = "lightgray"
		}
		label := fmt.Sprintf("%d", v.ID)
		if info.Species != "" {
			label = fmt.Sprintf("%d\\n%s(%d)", v.ID, truncate(info.Species, 16), info.Energy)
		}
		fmt.Fprintf(&b, "  \"%d\" [label=\"%s\", fillcolor=%q];\n", v.ID, label, color)
	}
	b.WriteString("\n")

	for _, e := range snap.Edges {
		fmt.Fprintf(&b, "  \"%d\" -> \"%d\";\n", e.Source, e.Target)
	}

	b.WriteString("}\n")
	return b.String()
}

// RenderJSON produces a JSON graph representation with nodes and edges arrays.
func RenderJSON(snap store.Snapshot) map[string]interface{} {
	jsonNodes := make([]map[string]interface{}, 0, len(snap.Vertices))
	for _, v := range snap.Vertices {
		info := decode(v)
		jsonNodes = append(jsonNodes, map[string]interface{}{
			"id":      v.ID,
			"species": info.Species,
			"energy":  info.Energy,
		})
	}

	jsonEdges := make([]map[string]interface{}, 0, len(snap.Edges))
	for _, e := range snap.Edges {
		jsonEdges = append(jsonEdges, map[string]interface{}{
			"source": e.Source,
			"target": e.Target,
		})
	}

	return map[string]interface{}{
		"nodes":      jsonNodes,
		"edges":      jsonEdges,
		"node_count": len(jsonNodes),
		"edge_count": len(jsonEdges),
	}
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
