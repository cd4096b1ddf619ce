package grpcapi

import (
	"context"
	"encoding/json"
	"net"
	"testing"

	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	longrunningpb "cloud.google.com/go/longrunning/autogen/longrunningpb"
	workflows "cloud.google.com/go/workflows/apiv1"
	workflowspb "cloud.google.com/go/workflows/apiv1/workflowspb"
	executions "cloud.google.com/go/workflows/executions/apiv1"
	executionspb "cloud.google.com/go/workflows/executions/apiv1/executionspb"

	"github.com/lemonberrylabs/axiom/pkg/runtime"
	"github.com/lemonberrylabs/axiom/pkg/store"
	"github.com/lemonberrylabs/axiom/pkg/types"
)

const parent = "projects/my-project/locations/us-central1"

func startTestServer(t *testing.T) (string, func()) {
	t.Helper()
	srv := New(store.New(), runtime.NewProgramCache())

	lis, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	go srv.ServeListener(lis)

	return lis.Addr().String(), func() {
		srv.Stop()
	}
}

func dial(t *testing.T, addr string) *grpc.ClientConn {
	t.Helper()
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	return conn
}

func deploy(t *testing.T, client workflowspb.WorkflowsClient, id, source string) {
	t.Helper()
	_, err := client.CreateWorkflow(context.Background(), &workflowspb.CreateWorkflowRequest{
		Parent:     parent,
		WorkflowId: id,
		Workflow: &workflowspb.Workflow{
			SourceCode: &workflowspb.Workflow_SourceContents{SourceContents: source},
		},
	})
	if err != nil {
		t.Fatalf("CreateWorkflow(%s): %v", id, err)
	}
}

func TestCreateAndGetWorkflow(t *testing.T) {
	addr, cleanup := startTestServer(t)
	defer cleanup()

	conn := dial(t, addr)
	defer conn.Close()

	client := workflowspb.NewWorkflowsClient(conn)
	ctx := context.Background()

	op, err := client.CreateWorkflow(ctx, &workflowspb.CreateWorkflowRequest{
		Parent:     parent,
		WorkflowId: "calc",
		Workflow: &workflowspb.Workflow{
			Description: "adds",
			SourceCode: &workflowspb.Workflow_SourceContents{
				SourceContents: "let x = 1\nx + 2",
			},
		},
	})
	if err != nil {
		t.Fatalf("CreateWorkflow: %v", err)
	}
	if !op.GetDone() {
		t.Fatal("expected operation to be done")
	}

	wf, err := client.GetWorkflow(ctx, &workflowspb.GetWorkflowRequest{Name: parent + "/workflows/calc"})
	if err != nil {
		t.Fatalf("GetWorkflow: %v", err)
	}
	if wf.GetState() != workflowspb.Workflow_ACTIVE {
		t.Fatalf("unexpected state: %v", wf.GetState())
	}
	if wf.GetSourceContents() != "let x = 1\nx + 2" || wf.GetDescription() != "adds" {
		t.Fatalf("unexpected workflow: %v", wf)
	}

	// The create operation can be fetched again through the Operations service.
	ops := longrunningpb.NewOperationsClient(conn)
	got, err := ops.GetOperation(ctx, &longrunningpb.GetOperationRequest{Name: op.GetName()})
	if err != nil {
		t.Fatalf("GetOperation: %v", err)
	}
	if !got.GetDone() {
		t.Error("expected stored operation to be done")
	}
	_, err = ops.GetOperation(ctx, &longrunningpb.GetOperationRequest{Name: "projects/-/locations/-/operations/nope"})
	if status.Code(err) != codes.NotFound {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestCreateWorkflowErrors(t *testing.T) {
	addr, cleanup := startTestServer(t)
	defer cleanup()

	conn := dial(t, addr)
	defer conn.Close()

	client := workflowspb.NewWorkflowsClient(conn)
	ctx := context.Background()

	tests := []struct {
		name string
		req  *workflowspb.CreateWorkflowRequest
		code codes.Code
	}{
		{
			name: "missing workflow_id",
			req:  &workflowspb.CreateWorkflowRequest{Parent: parent, Workflow: &workflowspb.Workflow{}},
			code: codes.InvalidArgument,
		},
		{
			name: "missing source",
			req:  &workflowspb.CreateWorkflowRequest{Parent: parent, WorkflowId: "a", Workflow: &workflowspb.Workflow{}},
			code: codes.InvalidArgument,
		},
		{
			name: "parse error",
			req: &workflowspb.CreateWorkflowRequest{
				Parent:     parent,
				WorkflowId: "a",
				Workflow: &workflowspb.Workflow{
					SourceCode: &workflowspb.Workflow_SourceContents{SourceContents: "let x ="},
				},
			},
			code: codes.InvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.CreateWorkflow(ctx, tt.req)
			if status.Code(err) != tt.code {
				t.Fatalf("got %v, want %v", err, tt.code)
			}
		})
	}

	deploy(t, client, "dup", "1")
	_, err := client.CreateWorkflow(ctx, &workflowspb.CreateWorkflowRequest{
		Parent:     parent,
		WorkflowId: "dup",
		Workflow: &workflowspb.Workflow{
			SourceCode: &workflowspb.Workflow_SourceContents{SourceContents: "1"},
		},
	})
	if status.Code(err) != codes.AlreadyExists {
		t.Fatalf("expected AlreadyExists, got %v", err)
	}
}

func TestListUpdateDeleteWorkflow(t *testing.T) {
	addr, cleanup := startTestServer(t)
	defer cleanup()

	conn := dial(t, addr)
	defer conn.Close()

	client := workflowspb.NewWorkflowsClient(conn)
	ctx := context.Background()

	deploy(t, client, "wf-a", "1")
	deploy(t, client, "wf-b", "2")

	resp, err := client.ListWorkflows(ctx, &workflowspb.ListWorkflowsRequest{Parent: parent})
	if err != nil {
		t.Fatalf("ListWorkflows: %v", err)
	}
	if len(resp.GetWorkflows()) != 2 {
		t.Fatalf("expected 2 workflows, got %d", len(resp.GetWorkflows()))
	}

	name := parent + "/workflows/wf-a"
	op, err := client.UpdateWorkflow(ctx, &workflowspb.UpdateWorkflowRequest{
		Workflow: &workflowspb.Workflow{
			Name:       name,
			SourceCode: &workflowspb.Workflow_SourceContents{SourceContents: "3 * 3"},
		},
	})
	if err != nil {
		t.Fatalf("UpdateWorkflow: %v", err)
	}
	if !op.GetDone() {
		t.Fatal("expected update operation to be done")
	}

	wf, err := client.GetWorkflow(ctx, &workflowspb.GetWorkflowRequest{Name: name})
	if err != nil {
		t.Fatalf("GetWorkflow after update: %v", err)
	}
	if wf.GetSourceContents() != "3 * 3" {
		t.Fatalf("source not updated: %s", wf.GetSourceContents())
	}

	_, err = client.UpdateWorkflow(ctx, &workflowspb.UpdateWorkflowRequest{
		Workflow: &workflowspb.Workflow{
			Name:       name,
			SourceCode: &workflowspb.Workflow_SourceContents{SourceContents: "3 *"},
		},
	})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument for bad update, got %v", err)
	}

	if _, err := client.DeleteWorkflow(ctx, &workflowspb.DeleteWorkflowRequest{Name: name}); err != nil {
		t.Fatalf("DeleteWorkflow: %v", err)
	}
	_, err = client.GetWorkflow(ctx, &workflowspb.GetWorkflowRequest{Name: name})
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound after delete, got %v", err)
	}
}

func TestCreateAndGetExecution(t *testing.T) {
	addr, cleanup := startTestServer(t)
	defer cleanup()

	conn := dial(t, addr)
	defer conn.Close()

	wfClient := workflowspb.NewWorkflowsClient(conn)
	exClient := executionspb.NewExecutionsClient(conn)
	ctx := context.Background()

	deploy(t, wfClient, "calc", "1 + 2 * 3")

	exec, err := exClient.CreateExecution(ctx, &executionspb.CreateExecutionRequest{
		Parent:    parent + "/workflows/calc",
		Execution: &executionspb.Execution{},
	})
	if err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}
	if exec.GetState() != executionspb.Execution_SUCCEEDED {
		t.Fatalf("expected SUCCEEDED, got %v (error: %v)", exec.GetState(), exec.GetError())
	}

	got, err := exClient.GetExecution(ctx, &executionspb.GetExecutionRequest{Name: exec.GetName()})
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}

	var v types.Value
	if err := json.Unmarshal([]byte(got.GetResult()), &v); err != nil {
		t.Fatalf("result is not a value: %v", err)
	}
	if !v.Equal(types.NewInt(7)) {
		t.Fatalf("unexpected result: %s", got.GetResult())
	}
	if got.GetEndTime() == nil {
		t.Error("expected end time")
	}
}

func TestExecutionWithArguments(t *testing.T) {
	addr, cleanup := startTestServer(t)
	defer cleanup()

	conn := dial(t, addr)
	defer conn.Close()

	wfClient := workflowspb.NewWorkflowsClient(conn)
	exClient := executionspb.NewExecutionsClient(conn)
	ctx := context.Background()

	deploy(t, wfClient, "args", "let d = n * 2\nlet t = start\nt")

	exec, err := exClient.CreateExecution(ctx, &executionspb.CreateExecutionRequest{
		Parent:    parent + "/workflows/args",
		Execution: &executionspb.Execution{Argument: `{"n": 4, "start": {"time": 9}}`},
	})
	if err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}
	if exec.GetState() != executionspb.Execution_SUCCEEDED {
		t.Fatalf("expected SUCCEEDED, got %v (error: %v)", exec.GetState(), exec.GetError())
	}
	if exec.GetResult() != `{"type":"Time","value":9}` {
		t.Fatalf("unexpected result: %s", exec.GetResult())
	}

	_, err = exClient.CreateExecution(ctx, &executionspb.CreateExecutionRequest{
		Parent:    parent + "/workflows/args",
		Execution: &executionspb.Execution{Argument: `not json`},
	})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestExecutionFailures(t *testing.T) {
	addr, cleanup := startTestServer(t)
	defer cleanup()

	conn := dial(t, addr)
	defer conn.Close()

	wfClient := workflowspb.NewWorkflowsClient(conn)
	exClient := executionspb.NewExecutionsClient(conn)
	ctx := context.Background()

	tests := []struct {
		id     string
		source string
		kind   types.FaultKind
		title  string
	}{
		{"unproven", "y * 2", types.FaultUndefinedVariable, "Unproven Variable"},
		{"mismatch", "now - now", types.FaultTypeMismatch, "Type Mismatch"},
		{"divzero", "let z = 0\n5 / z", types.FaultDivisionByZero, "Division By Zero"},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			deploy(t, wfClient, tt.id, tt.source)

			exec, err := exClient.CreateExecution(ctx, &executionspb.CreateExecutionRequest{
				Parent:    parent + "/workflows/" + tt.id,
				Execution: &executionspb.Execution{},
			})
			if err != nil {
				t.Fatalf("CreateExecution: %v", err)
			}
			if exec.GetState() != executionspb.Execution_FAILED {
				t.Fatalf("expected FAILED, got %v", exec.GetState())
			}
			if exec.GetError().GetContext() != tt.kind.String() {
				t.Errorf("got context %q, want %q", exec.GetError().GetContext(), tt.kind)
			}

			var d types.Diagnostic
			if err := json.Unmarshal([]byte(exec.GetError().GetPayload()), &d); err != nil {
				t.Fatalf("payload is not a diagnostic: %v", err)
			}
			if d.Kind != tt.kind || d.Title != tt.title {
				t.Errorf("unexpected diagnostic %+v", d)
			}
		})
	}
}

func TestListAndCancelExecutions(t *testing.T) {
	addr, cleanup := startTestServer(t)
	defer cleanup()

	conn := dial(t, addr)
	defer conn.Close()

	wfClient := workflowspb.NewWorkflowsClient(conn)
	exClient := executionspb.NewExecutionsClient(conn)
	ctx := context.Background()

	deploy(t, wfClient, "list-exec", "1")
	workflowName := parent + "/workflows/list-exec"

	var last string
	for i := 0; i < 3; i++ {
		exec, err := exClient.CreateExecution(ctx, &executionspb.CreateExecutionRequest{
			Parent:    workflowName,
			Execution: &executionspb.Execution{},
		})
		if err != nil {
			t.Fatalf("CreateExecution %d: %v", i, err)
		}
		last = exec.GetName()
	}

	resp, err := exClient.ListExecutions(ctx, &executionspb.ListExecutionsRequest{Parent: workflowName})
	if err != nil {
		t.Fatalf("ListExecutions: %v", err)
	}
	if len(resp.GetExecutions()) != 3 {
		t.Fatalf("expected 3 executions, got %d", len(resp.GetExecutions()))
	}

	_, err = exClient.CancelExecution(ctx, &executionspb.CancelExecutionRequest{Name: last})
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected FailedPrecondition, got %v", err)
	}
	_, err = exClient.CancelExecution(ctx, &executionspb.CancelExecutionRequest{Name: workflowName + "/executions/nope"})
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestOfficialClients(t *testing.T) {
	addr, cleanup := startTestServer(t)
	defer cleanup()

	ctx := context.Background()
	opts := []option.ClientOption{
		option.WithEndpoint(addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	}

	wfClient, err := workflows.NewClient(ctx, opts...)
	if err != nil {
		t.Fatalf("workflows.NewClient: %v", err)
	}
	defer wfClient.Close()

	exClient, err := executions.NewClient(ctx, opts...)
	if err != nil {
		t.Fatalf("executions.NewClient: %v", err)
	}
	defer exClient.Close()

	op, err := wfClient.CreateWorkflow(ctx, &workflowspb.CreateWorkflowRequest{
		Parent:     parent,
		WorkflowId: "official",
		Workflow: &workflowspb.Workflow{
			SourceCode: &workflowspb.Workflow_SourceContents{SourceContents: "let a = 6\na * 7"},
		},
	})
	if err != nil {
		t.Fatalf("CreateWorkflow: %v", err)
	}
	wf, err := op.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if wf.GetName() != parent+"/workflows/official" {
		t.Fatalf("unexpected name: %s", wf.GetName())
	}

	exec, err := exClient.CreateExecution(ctx, &executionspb.CreateExecutionRequest{
		Parent:    wf.GetName(),
		Execution: &executionspb.Execution{},
	})
	if err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}
	if exec.GetResult() != `{"type":"Int","value":42}` {
		t.Fatalf("unexpected result: %s", exec.GetResult())
	}
}
