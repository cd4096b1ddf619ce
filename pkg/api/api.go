// Package api implements the REST API for deploying and running Axiom
// programs. Resource paths follow the Google Cloud Workflows API surface:
// a program is a workflow and a run is an execution.
package api

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/lemonberrylabs/axiom/pkg/expr"
	"github.com/lemonberrylabs/axiom/pkg/runtime"
	"github.com/lemonberrylabs/axiom/pkg/store"
	"github.com/lemonberrylabs/axiom/pkg/types"
)

// SourceExt is the file extension of Axiom programs.
const SourceExt = ".axi"

// Server is the REST API server.
type Server struct {
	app   *fiber.App
	store *store.Store
	cache *runtime.ProgramCache
}

// Option configures a Server.
type Option func(*options)

type options struct {
	requestLog io.Writer
}

// WithRequestLog writes one line per HTTP request to w.
func WithRequestLog(w io.Writer) Option {
	return func(o *options) { o.requestLog = w }
}

// New creates a new API server.
func New(s *store.Store, cache *runtime.ProgramCache, opts ...Option) *Server {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	srv := &Server{
		store: s,
		cache: cache,
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
	})

	if o.requestLog != nil {
		app.Use(logger.New(logger.Config{Output: o.requestLog}))
	}

	// Programs API
	app.Post("/v1/projects/:project/locations/:location/workflows", srv.createProgram)
	app.Get("/v1/projects/:project/locations/:location/workflows/:workflow", srv.getProgram)
	app.Get("/v1/projects/:project/locations/:location/workflows", srv.listPrograms)
	app.Patch("/v1/projects/:project/locations/:location/workflows/:workflow", srv.updateProgram)
	app.Delete("/v1/projects/:project/locations/:location/workflows/:workflow", srv.deleteProgram)

	// Runs API
	app.Post("/v1/projects/:project/locations/:location/workflows/:workflow/executions", srv.createRun)
	app.Get("/v1/projects/:project/locations/:location/workflows/:workflow/executions/:execution", srv.getRun)
	app.Get("/v1/projects/:project/locations/:location/workflows/:workflow/executions", srv.listRuns)

	// Stateless pipeline endpoints
	app.Post("/v1/run", srv.run)
	app.Post("/v1/check", srv.check)
	app.Post("/v1/tokens", srv.tokens)

	srv.app = app
	return srv
}

// Listen starts the HTTP server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}

func apiError(c *fiber.Ctx, code int, status, message string) error {
	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    code,
			"message": message,
			"status":  status,
		},
	})
}

func diagnosticError(c *fiber.Ctx, message string, err error) error {
	return c.Status(400).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    400,
			"message": fmt.Sprintf("%s: %v", message, err),
			"status":  "INVALID_ARGUMENT",
			"details": types.ToDiagnostic(err),
		},
	})
}

// --- Program Handlers ---

type createProgramRequest struct {
	SourceContents string `json:"sourceContents"`
	Description    string `json:"description"`
}

func (s *Server) createProgram(c *fiber.Ctx) error {
	parent := buildParent(c)
	programID := c.Query("workflowId")
	if programID == "" {
		return apiError(c, 400, "INVALID_ARGUMENT", "workflowId query parameter is required")
	}

	var req createProgramRequest
	if err := c.BodyParser(&req); err != nil {
		return apiError(c, 400, "INVALID_ARGUMENT", fmt.Sprintf("invalid request body: %v", err))
	}
	if strings.TrimSpace(req.SourceContents) == "" {
		return apiError(c, 400, "INVALID_ARGUMENT", "sourceContents is required")
	}

	// Validate by parsing the program
	prog, err := expr.ParseProgram(req.SourceContents)
	if err != nil {
		return diagnosticError(c, "invalid program", err)
	}

	p, err := s.store.CreateProgram(parent, programID, req.SourceContents, req.Description)
	if err != nil {
		if strings.Contains(err.Error(), "already exists") {
			return apiError(c, 409, "ALREADY_EXISTS", err.Error())
		}
		return apiError(c, 500, "INTERNAL", err.Error())
	}

	s.cache.Put(p.Name, p.RevisionID, prog)
	return c.Status(200).JSON(programToJSON(p))
}

func (s *Server) getProgram(c *fiber.Ctx) error {
	p, err := s.store.GetProgram(buildProgramName(c))
	if err != nil {
		return apiError(c, 404, "NOT_FOUND", err.Error())
	}
	return c.JSON(programToJSON(p))
}

func (s *Server) listPrograms(c *fiber.Ctx) error {
	programs := s.store.ListPrograms(buildParent(c))

	items := make([]fiber.Map, len(programs))
	for i, p := range programs {
		items[i] = programToJSON(p)
	}
	return c.JSON(fiber.Map{
		"workflows": items,
	})
}

func (s *Server) updateProgram(c *fiber.Ctx) error {
	name := buildProgramName(c)

	var req createProgramRequest
	if err := c.BodyParser(&req); err != nil {
		return apiError(c, 400, "INVALID_ARGUMENT", fmt.Sprintf("invalid request body: %v", err))
	}

	var prog *expr.Program
	if req.SourceContents != "" {
		parsed, err := expr.ParseProgram(req.SourceContents)
		if err != nil {
			return diagnosticError(c, "invalid program", err)
		}
		prog = parsed
	}

	p, err := s.store.UpdateProgram(name, req.SourceContents, req.Description)
	if err != nil {
		return apiError(c, 404, "NOT_FOUND", err.Error())
	}
	if prog != nil {
		s.cache.Put(p.Name, p.RevisionID, prog)
	}

	return c.JSON(programToJSON(p))
}

func (s *Server) deleteProgram(c *fiber.Ctx) error {
	name := buildProgramName(c)

	if err := s.store.DeleteProgram(name); err != nil {
		return apiError(c, 404, "NOT_FOUND", err.Error())
	}
	s.cache.Delete(name)

	return c.JSON(fiber.Map{
		"name": fmt.Sprintf("projects/-/locations/-/operations/delete-%s", c.Params("workflow")),
		"done": true,
	})
}

// --- Run Handlers ---

type createRunRequest struct {
	Argument string `json:"argument"`
}

func (s *Server) createRun(c *fiber.Ctx) error {
	programName := buildProgramName(c)

	var req createRunRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return apiError(c, 400, "INVALID_ARGUMENT", fmt.Sprintf("invalid request body: %v", err))
	}

	bindings, err := types.BindingsFromJSON(req.Argument)
	if err != nil {
		return apiError(c, 400, "INVALID_ARGUMENT", fmt.Sprintf("invalid argument: %v", err))
	}

	p, err := s.store.GetProgram(programName)
	if err != nil {
		return apiError(c, 404, "NOT_FOUND", err.Error())
	}
	prog, err := s.cache.Get(p.Name, p.RevisionID, p.Source)
	if err != nil {
		return apiError(c, 500, "INTERNAL", fmt.Sprintf("failed to parse program: %v", err))
	}

	r, err := s.store.CreateRun(programName, req.Argument)
	if err != nil {
		return apiError(c, 500, "INTERNAL", err.Error())
	}

	result, runErr := runtime.RunProgram(c.UserContext(), prog, bindings)
	r, err = s.finishRun(r.Name, result, runErr)
	if err != nil {
		return apiError(c, 500, "INTERNAL", err.Error())
	}
	return c.Status(200).JSON(runToJSON(r))
}

// finishRun records the outcome of a run. It fails when the run is gone,
// which happens if its program was deleted while the run was executing.
func (s *Server) finishRun(name string, result runtime.Result, runErr error) (*store.Run, error) {
	if runErr != nil {
		return s.store.FailRun(name, runErr)
	}
	return s.store.CompleteRun(name, result)
}

func (s *Server) getRun(c *fiber.Ctx) error {
	r, err := s.store.GetRun(buildRunName(c))
	if err != nil {
		return apiError(c, 404, "NOT_FOUND", err.Error())
	}
	return c.JSON(runToJSON(r))
}

func (s *Server) listRuns(c *fiber.Ctx) error {
	runs := s.store.ListRuns(buildProgramName(c))

	items := make([]fiber.Map, len(runs))
	for i, r := range runs {
		items[i] = runToJSON(r)
	}
	return c.JSON(fiber.Map{
		"executions": items,
	})
}

// --- Stateless Handlers ---

type sourceRequest struct {
	Source   string `json:"source"`
	Argument string `json:"argument"`
}

func parseSourceRequest(c *fiber.Ctx) (sourceRequest, map[string]types.Value, error) {
	var req sourceRequest
	if err := c.BodyParser(&req); err != nil {
		return req, nil, fmt.Errorf("invalid request body: %w", err)
	}
	bindings, err := types.BindingsFromJSON(req.Argument)
	if err != nil {
		return req, nil, fmt.Errorf("invalid argument: %w", err)
	}
	return req, bindings, nil
}

func (s *Server) run(c *fiber.Ctx) error {
	req, bindings, err := parseSourceRequest(c)
	if err != nil {
		return apiError(c, 400, "INVALID_ARGUMENT", err.Error())
	}

	result, err := runtime.Run(c.UserContext(), req.Source, bindings)
	if err != nil {
		return c.JSON(fiber.Map{
			"state":      store.RunFailed,
			"diagnostic": types.ToDiagnostic(err),
		})
	}

	out := fiber.Map{
		"state": store.RunSucceeded,
		"ticks": result.Ticks,
	}
	if result.HasValue {
		out["result"] = result.Value
	}
	return c.JSON(out)
}

func (s *Server) check(c *fiber.Ctx) error {
	req, bindings, err := parseSourceRequest(c)
	if err != nil {
		return apiError(c, 400, "INVALID_ARGUMENT", err.Error())
	}

	if _, err := runtime.Compile(req.Source, bindings); err != nil {
		return c.JSON(fiber.Map{
			"valid":      false,
			"diagnostic": types.ToDiagnostic(err),
		})
	}
	return c.JSON(fiber.Map{"valid": true})
}

func (s *Server) tokens(c *fiber.Ctx) error {
	req, _, err := parseSourceRequest(c)
	if err != nil {
		return apiError(c, 400, "INVALID_ARGUMENT", err.Error())
	}

	toks, err := expr.NewLexer(req.Source).Tokenize()
	if err != nil {
		return diagnosticError(c, "tokenize", err)
	}

	items := make([]fiber.Map, len(toks))
	for i, tok := range toks {
		items[i] = fiber.Map{
			"type":  tok.Type.String(),
			"value": tok.Value,
			"pos":   tok.Pos,
		}
	}
	return c.JSON(fiber.Map{"tokens": items})
}

// --- Directory Loading ---

var validProgramID = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// LoadDir deploys every *.axi file in dir. The lower-cased file name (sans
// extension) becomes the program ID. Files that fail to parse are skipped.
func (s *Server) LoadDir(dir, project, location string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("reading programs directory: %w", err)
	}

	parent := fmt.Sprintf("projects/%s/locations/%s", project, location)
	loaded := 0

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if filepath.Ext(name) != SourceExt {
			continue
		}

		base := strings.TrimSuffix(name, SourceExt)
		programID := strings.ToLower(base)

		if programID != base {
			log.Printf("Warning: lowercased program ID %q (from file %q)", programID, name)
		}

		if !validProgramID.MatchString(programID) || len(programID) > 128 {
			log.Printf("Warning: skipping file %q: invalid program ID %q", name, programID)
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			log.Printf("Warning: could not read %q: %v", name, err)
			continue
		}

		prog, err := expr.ParseProgram(string(data))
		if err != nil {
			log.Printf("Warning: could not parse %q: %v", name, err)
			continue
		}

		p, err := s.store.CreateProgram(parent, programID, string(data), "")
		if err != nil {
			log.Printf("Warning: could not deploy %q: %v", name, err)
			continue
		}

		s.cache.Put(p.Name, p.RevisionID, prog)
		loaded++
		log.Printf("Loaded program %q from %s", programID, name)
	}

	log.Printf("Loaded %d program(s) from %s", loaded, dir)
	return loaded, nil
}

// --- Helpers ---

func buildParent(c *fiber.Ctx) string {
	return fmt.Sprintf("projects/%s/locations/%s", c.Params("project"), c.Params("location"))
}

func buildProgramName(c *fiber.Ctx) string {
	return store.ProgramName(buildParent(c), c.Params("workflow"))
}

func buildRunName(c *fiber.Ctx) string {
	return fmt.Sprintf("%s/executions/%s", buildProgramName(c), c.Params("execution"))
}

func programToJSON(p *store.Program) fiber.Map {
	return fiber.Map{
		"name":           p.Name,
		"description":    p.Description,
		"state":          p.State,
		"revisionId":     p.RevisionID,
		"createTime":     p.CreateTime.Format(time.RFC3339),
		"updateTime":     p.UpdateTime.Format(time.RFC3339),
		"sourceContents": p.Source,
	}
}

func runToJSON(r *store.Run) fiber.Map {
	result := fiber.Map{
		"name":               r.Name,
		"state":              r.State,
		"startTime":          r.StartTime.Format(time.RFC3339),
		"workflowRevisionId": r.ProgramRevisionID,
	}

	if r.Argument != "" {
		result["argument"] = r.Argument
	}
	if r.Result != "" {
		result["result"] = r.Result
	}
	if r.Error != nil {
		result["error"] = fiber.Map{
			"payload": r.Error.Payload,
			"context": r.Error.Context,
		}
	}
	if !r.EndTime.IsZero() {
		result["endTime"] = r.EndTime.Format(time.RFC3339)
	}

	return result
}
