package http

import (
	"embed"
	"fmt"
	"html/template"
	"strings"

	"crqbank/internal/domain"
	"github.com/gin-gonic/gin/render"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageNames = []string{"home", "auth", "practice", "stats"}

var funcs = template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}

// pageRenderer pairs every page template with the shared layout. Pages are
// parsed into separate sets because each defines its own "content" block.
type pageRenderer map[string]*template.Template

func loadPages() (pageRenderer, error) {
	pages := make(pageRenderer, len(pageNames))
	for _, name := range pageNames {
		tmpl, err := template.New(name).Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
		pages[name] = tmpl
	}
	return pages, nil
}

func (p pageRenderer) Instance(name string, data any) render.Render {
	return render.HTML{Template: p[name], Name: "layout", Data: data}
}

// page is the data every template receives.
type page struct {
	Title    string
	Notice   string
	Identity *domain.Identity
	Entitled bool
	Data     any
}

func newPage(title string, session *domain.Session, data any) page {
	return page{
		Title:    title,
		Notice:   session.TakeNotice(),
		Identity: session.Identity,
		Entitled: session.Entitled,
		Data:     data,
	}
}

const (
	chartWidth  = 480
	chartHeight = 160
)

// chartPoints maps cumulative accuracy percentages onto an SVG polyline.
func chartPoints(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	step := 0.0
	if len(values) > 1 {
		step = float64(chartWidth) / float64(len(values)-1)
	}
	points := make([]string, len(values))
	for i, v := range values {
		x := step * float64(i)
		y := float64(chartHeight) - v/100*float64(chartHeight)
		points[i] = fmt.Sprintf("%.1f,%.1f", x, y)
	}
	return strings.Join(points, " ")
}
