package statement

import (
	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// Document is the layout-independent content of one statement.
type Document struct {
	Title       string
	Party       string
	Month       string
	GeneratedAt string
	Currency    string
	Headers     []string
	Lines       []Line
	Totals      []Total
	Note        string
}

type Line struct {
	Cells []string
}

type Total struct {
	Label    string
	Amount   string
	Emphasis bool
}

const gridSize = 12

func build(data Document) ([]byte, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(gridSize, data.Title, props.Text{
			Size:  18,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)
	m.AddRow(18,
		col.New(8).Add(
			text.New(data.Party, props.Text{Style: fontstyle.Bold}),
			text.New("Settlement month: "+data.Month, props.Text{Top: 5}),
			text.New("Currency: "+data.Currency, props.Text{Top: 10}),
		),
		text.NewCol(4, "Generated "+data.GeneratedAt, props.Text{Size: 8, Align: align.Right}),
	)

	widths := columnWidths(len(data.Headers))
	header := make([]core.Col, 0, len(data.Headers))
	for i, h := range data.Headers {
		header = append(header, text.NewCol(widths[i], h, cellProps(i, len(widths), fontstyle.Bold)))
	}
	m.AddRow(8, header...)
	m.AddRow(2, line.NewCol(gridSize))

	for _, l := range data.Lines {
		cells := make([]core.Col, 0, len(l.Cells))
		for i, c := range l.Cells {
			if i >= len(widths) {
				break
			}
			cells = append(cells, text.NewCol(widths[i], c, cellProps(i, len(widths), fontstyle.Normal)))
		}
		m.AddRow(7, cells...)
	}

	m.AddRow(4, col.New(gridSize))
	for _, t := range data.Totals {
		style := fontstyle.Normal
		if t.Emphasis {
			style = fontstyle.Bold
		}
		m.AddRow(7,
			col.New(7),
			text.NewCol(3, t.Label, props.Text{Size: 9, Style: style}),
			text.NewCol(2, t.Amount, props.Text{Size: 9, Style: style, Align: align.Right}),
		)
	}

	if data.Note != "" {
		m.AddRow(10, text.NewCol(gridSize, data.Note, props.Text{Size: 8, Top: 3}))
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}

// columnWidths spreads n columns over the 12-unit grid, giving the first
// column the remainder.
func columnWidths(n int) []int {
	if n <= 0 {
		return nil
	}
	if n > gridSize {
		n = gridSize
	}
	base := gridSize / n
	widths := make([]int, n)
	for i := range widths {
		widths[i] = base
	}
	widths[0] += gridSize - base*n
	return widths
}

func cellProps(index, count int, style fontstyle.Type) props.Text {
	p := props.Text{Size: 9, Style: style}
	if index == count-1 {
		p.Align = align.Right
	}
	return p
}
