package diagram

import (
	"encoding/xml"
	"fmt"

	"archflow/graph"
)

const (
	cellWidth  = 120
	cellHeight = 60
	gridX      = 100
	gridY      = 100
	spacing    = 200
	perRow     = 3
)

const (
	styleDatabase = "shape=cylinder3;whiteSpace=wrap;html=1;boundedLbl=1;backgroundOutline=1;size=15;fillColor=#dae8fc;strokeColor=#6c8ebf;"
	styleQueue    = "shape=hexagon;perimeter=hexagonPerimeter2;whiteSpace=wrap;html=1;fixedSize=1;fillColor=#fff2cc;strokeColor=#d6b656;"
	styleExternal = "ellipse;shape=cloud;whiteSpace=wrap;html=1;fillColor=#f5f5f5;strokeColor=#666666;"
	styleDefault  = "rounded=1;whiteSpace=wrap;html=1;fillColor=#d5e8d4;strokeColor=#82b366;"
	styleEdge     = "edgeStyle=orthogonalEdgeStyle;rounded=0;orthogonalLoop=1;jettySize=auto;html=1;"
)

type mxFile struct {
	XMLName xml.Name  `xml:"mxfile"`
	Host    string    `xml:"host,attr"`
	Agent   string    `xml:"agent,attr"`
	Version string    `xml:"version,attr"`
	Diagram mxDiagram `xml:"diagram"`
}

type mxDiagram struct {
	Name  string       `xml:"name,attr"`
	ID    string       `xml:"id,attr"`
	Model mxGraphModel `xml:"mxGraphModel"`
}

type mxGraphModel struct {
	Dx       string `xml:"dx,attr"`
	Dy       string `xml:"dy,attr"`
	Grid     string `xml:"grid,attr"`
	GridSize string `xml:"gridSize,attr"`
	Guides   string `xml:"guides,attr"`
	Root     mxRoot `xml:"root"`
}

type mxRoot struct {
	Cells []mxCell `xml:"mxCell"`
}

type mxCell struct {
	ID       string      `xml:"id,attr"`
	Value    string      `xml:"value,attr,omitempty"`
	Style    string      `xml:"style,attr,omitempty"`
	Vertex   string      `xml:"vertex,attr,omitempty"`
	Edge     string      `xml:"edge,attr,omitempty"`
	Parent   string      `xml:"parent,attr,omitempty"`
	Source   string      `xml:"source,attr,omitempty"`
	Target   string      `xml:"target,attr,omitempty"`
	Geometry *mxGeometry `xml:"mxGeometry,omitempty"`
}

type mxGeometry struct {
	X        int    `xml:"x,attr,omitempty"`
	Y        int    `xml:"y,attr,omitempty"`
	Width    int    `xml:"width,attr,omitempty"`
	Height   int    `xml:"height,attr,omitempty"`
	Relative string `xml:"relative,attr,omitempty"`
	As       string `xml:"as,attr"`
}

// RenderDrawio emits an mxGraph document with components laid out on a
// grid, three per row, in the same canonical order as the PlantUML output.
// Edges reference vertex ids and are only emitted when both endpoints are
// known vertices.
func RenderDrawio(g graph.Graph) string {
	entities := g.SortedEntities()
	relationships := g.SortedRelationships()

	cells := []mxCell{
		{ID: "0"},
		{ID: "1", Parent: "0"},
	}

	vertexIDs := make(map[string]string, len(entities))
	for idx, e := range entities {
		id := cellID("comp", idx+2)
		vertexIDs[graph.NormalizeName(e.Name)] = id

		row := idx / perRow
		col := idx % perRow
		cells = append(cells, mxCell{
			ID:     id,
			Value:  e.Name,
			Style:  drawioStyle(e.Kind),
			Vertex: "1",
			Parent: "1",
			Geometry: &mxGeometry{
				X:      gridX + col*spacing,
				Y:      gridY + row*spacing,
				Width:  cellWidth,
				Height: cellHeight,
				As:     "geometry",
			},
		})
	}

	edgeID := len(entities) + 2
	for _, r := range relationships {
		src, okSrc := vertexIDs[graph.NormalizeName(r.Source)]
		dst, okDst := vertexIDs[graph.NormalizeName(r.Target)]
		if !okSrc || !okDst {
			continue
		}
		label := r.Label
		if label == "" {
			label = r.Kind
		}
		cells = append(cells, mxCell{
			ID:       cellID("edge", edgeID),
			Value:    label,
			Style:    styleEdge,
			Edge:     "1",
			Parent:   "1",
			Source:   src,
			Target:   dst,
			Geometry: &mxGeometry{Relative: "1", As: "geometry"},
		})
		edgeID++
	}

	if len(entities) == 0 {
		return FallbackDrawio()
	}
	return marshalMxFile(cells)
}

// FallbackDrawio is the minimal well-formed document for empty graphs and
// failed self-validation.
func FallbackDrawio() string {
	cells := []mxCell{
		{ID: "0"},
		{ID: "1", Parent: "0"},
		{
			ID:     "comp_2",
			Value:  "No architecture detected yet",
			Style:  styleDefault,
			Vertex: "1",
			Parent: "1",
			Geometry: &mxGeometry{
				X: gridX, Y: gridY, Width: 200, Height: cellHeight, As: "geometry",
			},
		},
	}
	return marshalMxFile(cells)
}

// ValidateDrawio checks that the document parses back into the expected
// mxfile structure with the two mandatory root cells.
func ValidateDrawio(doc string) bool {
	var parsed mxFile
	if err := xml.Unmarshal([]byte(doc), &parsed); err != nil {
		return false
	}
	return len(parsed.Diagram.Model.Root.Cells) >= 2
}

func marshalMxFile(cells []mxCell) string {
	file := mxFile{
		Host:    "app.diagrams.net",
		Agent:   "archflow",
		Version: "22.0.0",
		Diagram: mxDiagram{
			Name: "Architecture",
			ID:   "diagram1",
			Model: mxGraphModel{
				Dx: "1422", Dy: "794", Grid: "1", GridSize: "10", Guides: "1",
				Root: mxRoot{Cells: cells},
			},
		},
	}
	// marshaling a static struct tree cannot fail at runtime
	out, _ := xml.MarshalIndent(file, "", "  ")
	return xml.Header + string(out) + "\n"
}

func cellID(prefix string, n int) string {
	return fmt.Sprintf("%s_%d", prefix, n)
}

func drawioStyle(kind string) string {
	switch kind {
	case graph.KindDatabase:
		return styleDatabase
	case graph.KindQueue:
		return styleQueue
	case graph.KindExternal:
		return styleExternal
	default:
		return styleDefault
	}
}
