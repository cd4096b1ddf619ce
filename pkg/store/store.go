// Package store provides in-memory storage for deployed programs and their runs.
package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lemonberrylabs/axiom/pkg/runtime"
	"github.com/lemonberrylabs/axiom/pkg/types"
)

// ProgramState represents the state of a stored program.
type ProgramState string

const (
	ProgramActive ProgramState = "ACTIVE"
)

// RunState represents the state of a program run.
type RunState string

const (
	RunActive    RunState = "ACTIVE"
	RunSucceeded RunState = "SUCCEEDED"
	RunFailed    RunState = "FAILED"
)

// Program represents a deployed program.
type Program struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	State       ProgramState `json:"state"`
	RevisionID  string       `json:"revisionId"`
	CreateTime  time.Time    `json:"createTime"`
	UpdateTime  time.Time    `json:"updateTime"`
	Source      string       `json:"sourceContents"`
}

// ID returns the last path segment of the program name.
func (p *Program) ID() string {
	return lastSegment(p.Name)
}

// Run represents a stored program run.
type Run struct {
	Name              string    `json:"name"`
	State             RunState  `json:"state"`
	Argument          string    `json:"argument,omitempty"`
	Result            string    `json:"result,omitempty"`
	Error             *RunError `json:"error,omitempty"`
	StartTime         time.Time `json:"startTime"`
	EndTime           time.Time `json:"endTime,omitempty"`
	ProgramRevisionID string    `json:"programRevisionId"`
}

// ID returns the last path segment of the run name.
func (r *Run) ID() string {
	return lastSegment(r.Name)
}

// ProgramName returns the name of the program the run belongs to.
func (r *Run) ProgramName() string {
	if i := strings.Index(r.Name, "/executions/"); i >= 0 {
		return r.Name[:i]
	}
	return ""
}

// RunError represents the failure of a run. Payload is the diagnostic JSON.
type RunError struct {
	Payload string `json:"payload"`
	Context string `json:"context,omitempty"`
}

// Store is a thread-safe in-memory storage for programs and runs.
type Store struct {
	mu       sync.RWMutex
	programs map[string]*Program
	runs     map[string]*Run

	// Counters for generating unique IDs
	runCounter int64
	revCounter int64
}

// New creates a new empty store.
func New() *Store {
	return &Store{
		programs: make(map[string]*Program),
		runs:     make(map[string]*Run),
	}
}

// ProgramName builds the resource name of a program.
func ProgramName(parent, programID string) string {
	return fmt.Sprintf("%s/workflows/%s", parent, programID)
}

// CreateProgram stores a new program.
func (s *Store) CreateProgram(parent, programID, source, description string) (*Program, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := ProgramName(parent, programID)
	if _, exists := s.programs[name]; exists {
		return nil, fmt.Errorf("program '%s' already exists", name)
	}

	s.revCounter++
	now := time.Now()
	p := &Program{
		Name:        name,
		Description: description,
		State:       ProgramActive,
		RevisionID:  fmt.Sprintf("%06d-000", s.revCounter),
		CreateTime:  now,
		UpdateTime:  now,
		Source:      source,
	}
	s.programs[name] = p
	return p.clone(), nil
}

// GetProgram retrieves a program by its full name.
func (s *Store) GetProgram(name string) (*Program, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.programs[name]
	if !ok {
		return nil, fmt.Errorf("program '%s' not found", name)
	}
	return p.clone(), nil
}

// ListPrograms returns all programs under a parent, sorted by name.
// An empty parent lists every program.
func (s *Store) ListPrograms(parent string) []*Program {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Program
	prefix := parent + "/workflows/"
	for name, p := range s.programs {
		if parent == "" || strings.HasPrefix(name, prefix) {
			result = append(result, p.clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// UpdateProgram replaces a program's source and bumps its revision.
// Empty arguments leave the corresponding field unchanged.
func (s *Store) UpdateProgram(name, source, description string) (*Program, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.programs[name]
	if !ok {
		return nil, fmt.Errorf("program '%s' not found", name)
	}

	s.revCounter++
	if source != "" {
		p.Source = source
	}
	if description != "" {
		p.Description = description
	}
	p.RevisionID = fmt.Sprintf("%06d-000", s.revCounter)
	p.UpdateTime = time.Now()

	return p.clone(), nil
}

// DeleteProgram removes a program and its runs.
func (s *Store) DeleteProgram(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.programs[name]; !ok {
		return fmt.Errorf("program '%s' not found", name)
	}
	delete(s.programs, name)
	prefix := name + "/executions/"
	for runName := range s.runs {
		if strings.HasPrefix(runName, prefix) {
			delete(s.runs, runName)
		}
	}
	return nil
}

// CreateRun creates a new active run record for a program.
func (s *Store) CreateRun(programName, argument string) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.programs[programName]
	if !ok {
		return nil, fmt.Errorf("program '%s' not found", programName)
	}

	s.runCounter++
	name := fmt.Sprintf("%s/executions/run-%d", programName, s.runCounter)

	r := &Run{
		Name:              name,
		State:             RunActive,
		Argument:          argument,
		StartTime:         time.Now(),
		ProgramRevisionID: p.RevisionID,
	}
	s.runs[name] = r
	return r.clone(), nil
}

// GetRun retrieves a run by name.
func (s *Store) GetRun(name string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.runs[name]
	if !ok {
		return nil, fmt.Errorf("run '%s' not found", name)
	}
	return r.clone(), nil
}

// ListRuns returns all runs for a program, sorted by start time. An empty
// program name lists every run.
func (s *Store) ListRuns(programName string) []*Run {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Run
	prefix := programName + "/executions/"
	for name, r := range s.runs {
		if programName == "" || strings.HasPrefix(name, prefix) {
			result = append(result, r.clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].StartTime.Equal(result[j].StartTime) {
			return result[i].StartTime.Before(result[j].StartTime)
		}
		return result[i].Name < result[j].Name
	})
	return result
}

// CompleteRun marks a run as succeeded. A result without a value is
// stored as JSON null.
func (s *Store) CompleteRun(name string, result runtime.Result) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[name]
	if !ok {
		return nil, fmt.Errorf("run '%s' not found", name)
	}

	r.State = RunSucceeded
	r.EndTime = time.Now()
	r.Result = ResultJSON(result)
	return r.clone(), nil
}

// FailRun marks a run as failed, storing the error as diagnostic JSON.
func (s *Store) FailRun(name string, err error) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[name]
	if !ok {
		return nil, fmt.Errorf("run '%s' not found", name)
	}

	r.State = RunFailed
	r.EndTime = time.Now()

	d := types.ToDiagnostic(err)
	b, _ := json.Marshal(d)
	r.Error = &RunError{Payload: string(b), Context: d.Kind.String()}
	return r.clone(), nil
}

// ResultJSON encodes a run result: the value JSON, or null.
func ResultJSON(result runtime.Result) string {
	if !result.HasValue {
		return "null"
	}
	b, _ := json.Marshal(result.Value)
	return string(b)
}

func (p *Program) clone() *Program {
	c := *p
	return &c
}

func (r *Run) clone() *Run {
	c := *r
	if r.Error != nil {
		e := *r.Error
		c.Error = &e
	}
	return &c
}

func lastSegment(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}
