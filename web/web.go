// Package web provides the embedded dashboard for deployed Axiom programs.
package web

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/lemonberrylabs/axiom/pkg/expr"
	"github.com/lemonberrylabs/axiom/pkg/runtime"
	"github.com/lemonberrylabs/axiom/pkg/store"
	"github.com/lemonberrylabs/axiom/pkg/types"
)

//go:embed templates/*.html
var templateFS embed.FS

// Handler serves the web UI pages.
type Handler struct {
	store    *store.Store
	cache    *runtime.ProgramCache
	project  string
	location string
	funcMap  template.FuncMap
}

// pageData wraps all page-specific data with common fields.
type pageData struct {
	NavActive string
	Project   string
	Location  string
	Data      interface{}
}

// New creates a new web UI handler.
func New(s *store.Store, cache *runtime.ProgramCache, project, location string) *Handler {
	return &Handler{
		store:    s,
		cache:    cache,
		project:  project,
		location: location,
		funcMap: template.FuncMap{
			"shortName":  shortName,
			"timeAgo":    timeAgo,
			"formatTime": formatTime,
			"duration":   duration,
			"stateClass": stateClass,
			"stateIcon":  stateIcon,
			"truncate":   truncate,
			"countLines": countLines,
			"resultText": resultText,
		},
	}
}

func (h *Handler) render(c *fiber.Ctx, page string, navActive string, data interface{}) error {
	// Each page is parsed with the layout alone so define blocks never clash.
	tmpl := template.Must(
		template.New("").Funcs(h.funcMap).ParseFS(templateFS, "templates/layout.html", "templates/"+page),
	)

	pd := pageData{
		NavActive: navActive,
		Project:   h.project,
		Location:  h.location,
		Data:      data,
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, page, pd); err != nil {
		return c.Status(500).SendString(fmt.Sprintf("template error: %v", err))
	}

	c.Set("Content-Type", "text/html; charset=utf-8")
	return c.Send(buf.Bytes())
}

// Register adds web UI routes to the Fiber app.
func (h *Handler) Register(app *fiber.App) {
	app.Get("/ui", h.dashboard)
	app.Get("/ui/programs", h.programList)
	app.Get("/ui/programs/:id", h.programDetail)
	app.Post("/ui/programs/:id/runs", h.triggerRun)
	app.Get("/ui/programs/:id/runs/:run", h.runDetail)

	// Redirect root to UI
	app.Get("/", func(c *fiber.Ctx) error {
		return c.Redirect("/ui")
	})
}

// --- Page Data Types ---

type dashboardContent struct {
	Programs       []*store.Program
	RecentRuns     []*runView
	SucceededCount int
	FailedCount    int
}

type runView struct {
	*store.Run
	ProgramID string
	RunID     string
}

type programListContent struct {
	Programs []*programView
}

type programView struct {
	*store.Program
	ID          string
	RunCount    int
	FailedCount int
}

type tokenView struct {
	Type  string
	Value string
	Pos   int
}

type programDetailContent struct {
	Program  *store.Program
	ID       string
	Tokens   []tokenView
	Tree     string
	ParseErr *types.Diagnostic
	Runs     []*runView
}

type runDetailContent struct {
	Run        *store.Run
	ProgramID  string
	RunID      string
	Diagnostic *types.Diagnostic
}

type notFoundContent struct {
	Message string
}

// --- Page Handlers ---

func (h *Handler) parent() string {
	return fmt.Sprintf("projects/%s/locations/%s", h.project, h.location)
}

func (h *Handler) programName(id string) string {
	return store.ProgramName(h.parent(), id)
}

func (h *Handler) runViews(programName string) []*runView {
	runs := h.store.ListRuns(programName)
	views := make([]*runView, 0, len(runs))
	for _, r := range runs {
		views = append(views, &runView{
			Run:       r,
			ProgramID: shortName(r.ProgramName()),
			RunID:     r.ID(),
		})
	}
	sort.Slice(views, func(i, j int) bool {
		return views[i].StartTime.After(views[j].StartTime)
	})
	return views
}

func (h *Handler) dashboard(c *fiber.Ctx) error {
	programs := h.store.ListPrograms(h.parent())
	sort.Slice(programs, func(i, j int) bool {
		return programs[i].UpdateTime.After(programs[j].UpdateTime)
	})

	var all []*runView
	var succeeded, failed int
	for _, p := range programs {
		for _, rv := range h.runViews(p.Name) {
			all = append(all, rv)
			switch rv.State {
			case store.RunSucceeded:
				succeeded++
			case store.RunFailed:
				failed++
			}
		}
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].StartTime.After(all[j].StartTime)
	})
	if len(all) > 10 {
		all = all[:10]
	}

	return h.render(c, "dashboard.html", "dashboard", dashboardContent{
		Programs:       programs,
		RecentRuns:     all,
		SucceededCount: succeeded,
		FailedCount:    failed,
	})
}

func (h *Handler) programList(c *fiber.Ctx) error {
	programs := h.store.ListPrograms(h.parent())

	var views []*programView
	for _, p := range programs {
		runs := h.store.ListRuns(p.Name)
		failed := 0
		for _, r := range runs {
			if r.State == store.RunFailed {
				failed++
			}
		}
		views = append(views, &programView{
			Program:     p,
			ID:          p.ID(),
			RunCount:    len(runs),
			FailedCount: failed,
		})
	}

	return h.render(c, "program_list.html", "programs", programListContent{
		Programs: views,
	})
}

func (h *Handler) programDetail(c *fiber.Ctx) error {
	id := c.Params("id")
	p, err := h.store.GetProgram(h.programName(id))
	if err != nil {
		return h.render(c, "not_found.html", "", notFoundContent{
			Message: fmt.Sprintf("Program '%s' not found", id),
		})
	}

	content := programDetailContent{
		Program: p,
		ID:      id,
		Runs:    h.runViews(p.Name),
	}

	toks, err := expr.NewLexer(p.Source).Tokenize()
	if err != nil {
		content.ParseErr = types.ToDiagnostic(err)
	}
	for _, tok := range toks {
		content.Tokens = append(content.Tokens, tokenView{Type: tok.Type.String(), Value: tok.Value, Pos: tok.Pos})
	}

	if content.ParseErr == nil {
		prog, err := h.cache.Get(p.Name, p.RevisionID, p.Source)
		if err != nil {
			content.ParseErr = types.ToDiagnostic(err)
		} else {
			content.Tree = prog.String()
		}
	}

	return h.render(c, "program_detail.html", "programs", content)
}

func (h *Handler) triggerRun(c *fiber.Ctx) error {
	id := c.Params("id")
	p, err := h.store.GetProgram(h.programName(id))
	if err != nil {
		return h.render(c, "not_found.html", "", notFoundContent{
			Message: fmt.Sprintf("Program '%s' not found", id),
		})
	}

	argument := strings.TrimSpace(c.FormValue("argument"))

	r, err := h.store.CreateRun(p.Name, argument)
	if err != nil {
		return c.Status(500).SendString(err.Error())
	}

	if err := h.execute(c, p, r.Name, argument); err != nil {
		h.failRun(r.Name, err)
	}

	return c.Redirect(fmt.Sprintf("/ui/programs/%s/runs/%s", id, r.ID()))
}

func (h *Handler) failRun(name string, runErr error) {
	if _, err := h.store.FailRun(name, runErr); err != nil {
		log.Printf("Warning: could not record failure of %s: %v", name, err)
	}
}

// execute runs a stored program and records a successful result under
// runName. A returned error is recorded by the caller.
func (h *Handler) execute(c *fiber.Ctx, p *store.Program, runName, argument string) error {
	bindings, err := types.BindingsFromJSON(argument)
	if err != nil {
		return err
	}
	prog, err := h.cache.Get(p.Name, p.RevisionID, p.Source)
	if err != nil {
		return err
	}
	result, err := runtime.RunProgram(c.UserContext(), prog, bindings)
	if err != nil {
		return err
	}
	_, err = h.store.CompleteRun(runName, result)
	return err
}

func (h *Handler) runDetail(c *fiber.Ctx) error {
	id := c.Params("id")
	runID := c.Params("run")
	name := fmt.Sprintf("%s/executions/%s", h.programName(id), runID)

	r, err := h.store.GetRun(name)
	if err != nil {
		return h.render(c, "not_found.html", "", notFoundContent{
			Message: fmt.Sprintf("Run '%s' not found", runID),
		})
	}

	content := runDetailContent{
		Run:       r,
		ProgramID: id,
		RunID:     runID,
	}
	if r.Error != nil {
		var d types.Diagnostic
		if err := json.Unmarshal([]byte(r.Error.Payload), &d); err == nil {
			content.Diagnostic = &d
		}
	}

	return h.render(c, "run_detail.html", "programs", content)
}

// --- Template Helpers ---

func shortName(fullName string) string {
	parts := strings.Split(fullName, "/")
	return parts[len(parts)-1]
}

// resultText renders a stored result JSON the way the CLI prints values.
func resultText(raw string) string {
	if raw == "" || raw == "null" {
		return "none"
	}
	var v types.Value
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v.String()
}

func timeAgo(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		m := int(d.Minutes())
		if m == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", m)
	case d < 24*time.Hour:
		h := int(d.Hours())
		if h == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", h)
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

func duration(start, end time.Time) string {
	if end.IsZero() {
		return fmt.Sprintf("%s (running)", formatDuration(time.Since(start)))
	}
	return formatDuration(end.Sub(start))
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func stateClass(state store.RunState) string {
	switch state {
	case store.RunActive:
		return "state-active"
	case store.RunSucceeded:
		return "state-succeeded"
	case store.RunFailed:
		return "state-failed"
	default:
		return ""
	}
}

func stateIcon(state store.RunState) template.HTML {
	switch state {
	case store.RunActive:
		return "&#9654;"
	case store.RunSucceeded:
		return "&#10003;"
	case store.RunFailed:
		return "&#10007;"
	default:
		return "&#8226;"
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(s, "\n") + 1
}
