// Package grpcapi serves Axiom programs over the Google Cloud Workflows gRPC
// surface, so the official Cloud Workflows Go clients can deploy programs and
// run them. A program is exposed as a Workflow and a run as an Execution.
package grpcapi

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/timestamppb"

	longrunningpb "cloud.google.com/go/longrunning/autogen/longrunningpb"
	workflowspb "cloud.google.com/go/workflows/apiv1/workflowspb"
	executionspb "cloud.google.com/go/workflows/executions/apiv1/executionspb"

	"github.com/lemonberrylabs/axiom/pkg/expr"
	"github.com/lemonberrylabs/axiom/pkg/runtime"
	"github.com/lemonberrylabs/axiom/pkg/store"
	"github.com/lemonberrylabs/axiom/pkg/types"
)

// Server implements the Workflows, Executions and Operations gRPC services.
type Server struct {
	workflowspb.UnimplementedWorkflowsServer
	executionspb.UnimplementedExecutionsServer
	longrunningpb.UnimplementedOperationsServer

	store *store.Store
	cache *runtime.ProgramCache
	grpc  *grpc.Server

	mu         sync.Mutex
	operations map[string]*longrunningpb.Operation
}

// New creates a new gRPC server wrapping the given store.
func New(s *store.Store, cache *runtime.ProgramCache) *Server {
	srv := &Server{
		store:      s,
		cache:      cache,
		operations: make(map[string]*longrunningpb.Operation),
	}

	gs := grpc.NewServer()
	workflowspb.RegisterWorkflowsServer(gs, srv)
	executionspb.RegisterExecutionsServer(gs, srv)
	longrunningpb.RegisterOperationsServer(gs, srv)
	srv.grpc = gs

	return srv
}

// Serve starts listening on the given address and serves gRPC requests.
func (s *Server) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	return s.ServeListener(lis)
}

// ServeListener serves gRPC requests on an existing listener.
func (s *Server) ServeListener(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// GracefulStop gracefully stops the gRPC server.
func (s *Server) GracefulStop() {
	s.grpc.GracefulStop()
}

// Stop stops the gRPC server immediately.
func (s *Server) Stop() {
	s.grpc.Stop()
}

// --- Workflows Service ---

func (s *Server) CreateWorkflow(ctx context.Context, req *workflowspb.CreateWorkflowRequest) (*longrunningpb.Operation, error) {
	if req.GetWorkflowId() == "" {
		return nil, status.Error(codes.InvalidArgument, "workflow_id is required")
	}
	wfProto := req.GetWorkflow()
	if wfProto == nil {
		return nil, status.Error(codes.InvalidArgument, "workflow is required")
	}
	src := wfProto.GetSourceContents()
	if strings.TrimSpace(src) == "" {
		return nil, status.Error(codes.InvalidArgument, "source_contents is required")
	}

	// Validate by parsing
	prog, err := expr.ParseProgram(src)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid program: %v", err)
	}

	p, err := s.store.CreateProgram(req.GetParent(), req.GetWorkflowId(), src, wfProto.GetDescription())
	if err != nil {
		if strings.Contains(err.Error(), "already exists") {
			return nil, status.Error(codes.AlreadyExists, err.Error())
		}
		return nil, status.Error(codes.Internal, err.Error())
	}

	s.cache.Put(p.Name, p.RevisionID, prog)

	return s.doneOperation("create-"+req.GetWorkflowId(), programToProto(p))
}

func (s *Server) GetWorkflow(ctx context.Context, req *workflowspb.GetWorkflowRequest) (*workflowspb.Workflow, error) {
	p, err := s.store.GetProgram(req.GetName())
	if err != nil {
		return nil, status.Error(codes.NotFound, err.Error())
	}
	return programToProto(p), nil
}

func (s *Server) ListWorkflows(ctx context.Context, req *workflowspb.ListWorkflowsRequest) (*workflowspb.ListWorkflowsResponse, error) {
	programs := s.store.ListPrograms(req.GetParent())

	pbWorkflows := make([]*workflowspb.Workflow, len(programs))
	for i, p := range programs {
		pbWorkflows[i] = programToProto(p)
	}

	return &workflowspb.ListWorkflowsResponse{
		Workflows: pbWorkflows,
	}, nil
}

func (s *Server) UpdateWorkflow(ctx context.Context, req *workflowspb.UpdateWorkflowRequest) (*longrunningpb.Operation, error) {
	wfProto := req.GetWorkflow()
	if wfProto == nil {
		return nil, status.Error(codes.InvalidArgument, "workflow is required")
	}

	name := wfProto.GetName()
	src := wfProto.GetSourceContents()

	var prog *expr.Program
	if src != "" {
		parsed, err := expr.ParseProgram(src)
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "invalid program: %v", err)
		}
		prog = parsed
	}

	p, err := s.store.UpdateProgram(name, src, wfProto.GetDescription())
	if err != nil {
		return nil, status.Error(codes.NotFound, err.Error())
	}
	if prog != nil {
		s.cache.Put(p.Name, p.RevisionID, prog)
	}

	return s.doneOperation("update-"+p.ID(), programToProto(p))
}

func (s *Server) DeleteWorkflow(ctx context.Context, req *workflowspb.DeleteWorkflowRequest) (*longrunningpb.Operation, error) {
	name := req.GetName()
	if err := s.store.DeleteProgram(name); err != nil {
		return nil, status.Error(codes.NotFound, err.Error())
	}

	s.cache.Delete(name)

	parts := strings.Split(name, "/")
	return s.doneOperation("delete-"+parts[len(parts)-1], nil)
}

// --- Executions Service ---

// CreateExecution type-checks and runs the program synchronously; the
// returned execution is already SUCCEEDED or FAILED.
func (s *Server) CreateExecution(ctx context.Context, req *executionspb.CreateExecutionRequest) (*executionspb.Execution, error) {
	programName := req.GetParent()
	argument := req.GetExecution().GetArgument()

	bindings, err := types.BindingsFromJSON(argument)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid argument: %v", err)
	}

	p, err := s.store.GetProgram(programName)
	if err != nil {
		return nil, status.Error(codes.NotFound, err.Error())
	}
	prog, err := s.cache.Get(p.Name, p.RevisionID, p.Source)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to parse program: %v", err)
	}

	r, err := s.store.CreateRun(programName, argument)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}

	result, err := runtime.RunProgram(ctx, prog, bindings)
	if err != nil {
		r, err = s.store.FailRun(r.Name, err)
	} else {
		r, err = s.store.CompleteRun(r.Name, result)
	}
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}

	return runToProto(r), nil
}

func (s *Server) GetExecution(ctx context.Context, req *executionspb.GetExecutionRequest) (*executionspb.Execution, error) {
	r, err := s.store.GetRun(req.GetName())
	if err != nil {
		return nil, status.Error(codes.NotFound, err.Error())
	}
	return runToProto(r), nil
}

func (s *Server) ListExecutions(ctx context.Context, req *executionspb.ListExecutionsRequest) (*executionspb.ListExecutionsResponse, error) {
	runs := s.store.ListRuns(req.GetParent())

	pbExecs := make([]*executionspb.Execution, len(runs))
	for i, r := range runs {
		pbExecs[i] = runToProto(r)
	}

	return &executionspb.ListExecutionsResponse{
		Executions: pbExecs,
	}, nil
}

// CancelExecution always fails for an existing run: runs complete before
// CreateExecution returns, so there is never an active one to cancel.
func (s *Server) CancelExecution(ctx context.Context, req *executionspb.CancelExecutionRequest) (*executionspb.Execution, error) {
	r, err := s.store.GetRun(req.GetName())
	if err != nil {
		return nil, status.Error(codes.NotFound, err.Error())
	}
	return nil, status.Errorf(codes.FailedPrecondition, "run %q is %s and cannot be cancelled", r.Name, r.State)
}

// --- Operations Service (for official client LRO support) ---

// GetOperation returns an operation previously produced by this server.
func (s *Server) GetOperation(ctx context.Context, req *longrunningpb.GetOperationRequest) (*longrunningpb.Operation, error) {
	s.mu.Lock()
	op, ok := s.operations[req.GetName()]
	s.mu.Unlock()
	if !ok {
		return nil, status.Errorf(codes.NotFound, "operation %q not found", req.GetName())
	}
	return op, nil
}

// doneOperation wraps a proto message in an already-completed LRO Operation.
// A nil message yields an operation with an empty response.
func (s *Server) doneOperation(name string, msg proto.Message) (*longrunningpb.Operation, error) {
	op := &longrunningpb.Operation{
		Name: fmt.Sprintf("projects/-/locations/-/operations/%s", name),
		Done: true,
	}
	if msg != nil {
		any, err := anypb.New(msg)
		if err != nil {
			return nil, status.Errorf(codes.Internal, "failed to marshal operation result: %v", err)
		}
		op.Result = &longrunningpb.Operation_Response{Response: any}
	}

	s.mu.Lock()
	s.operations[op.Name] = op
	s.mu.Unlock()

	return op, nil
}

// --- Conversions ---

func programToProto(p *store.Program) *workflowspb.Workflow {
	pb := &workflowspb.Workflow{
		Name:        p.Name,
		Description: p.Description,
		RevisionId:  p.RevisionID,
		CreateTime:  timestamppb.New(p.CreateTime),
		UpdateTime:  timestamppb.New(p.UpdateTime),
	}

	switch p.State {
	case store.ProgramActive:
		pb.State = workflowspb.Workflow_ACTIVE
	default:
		pb.State = workflowspb.Workflow_STATE_UNSPECIFIED
	}

	if p.Source != "" {
		pb.SourceCode = &workflowspb.Workflow_SourceContents{
			SourceContents: p.Source,
		}
	}

	return pb
}

func runToProto(r *store.Run) *executionspb.Execution {
	pb := &executionspb.Execution{
		Name:               r.Name,
		StartTime:          timestamppb.New(r.StartTime),
		Argument:           r.Argument,
		Result:             r.Result,
		WorkflowRevisionId: r.ProgramRevisionID,
	}

	switch r.State {
	case store.RunActive:
		pb.State = executionspb.Execution_ACTIVE
	case store.RunSucceeded:
		pb.State = executionspb.Execution_SUCCEEDED
	case store.RunFailed:
		pb.State = executionspb.Execution_FAILED
	default:
		pb.State = executionspb.Execution_STATE_UNSPECIFIED
	}

	if r.Error != nil {
		pb.Error = &executionspb.Execution_Error{
			Payload: r.Error.Payload,
			Context: r.Error.Context,
		}
	}

	if !r.EndTime.IsZero() {
		pb.EndTime = timestamppb.New(r.EndTime)
	}

	return pb
}
