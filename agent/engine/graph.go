package engine

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
	nodex "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/nodes"
)

// The turn pipeline is compiled as two graphs with the reply rendering
// between them, so ProcessTurn can release the conversation lock around the
// generator call without holding it inside a node.

func (e *Engine) compilePrepareGraph(
	ctx context.Context,
) (compose.Runnable[nodex.GraphInput, *nodex.GraphState], error) {
	graph := compose.NewGraph[nodex.GraphInput, *nodex.GraphState]()

	if err := graph.AddLambdaNode("validate_request",
		compose.InvokableLambda(func(ctx context.Context, in nodex.GraphInput) (*nodex.GraphState, error) {
			return nodex.ValidateRequest(in, e.now)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate_request: %w", err)
	}

	if err := graph.AddLambdaNode("load_state",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.LoadState(ctx, in, e.store, e.flows, e.prompts, e.cfg.DefaultLanguage)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node load_state: %w", err)
	}

	if err := graph.AddLambdaNode("enforce_rules",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.EnforceRules(in, e.enforcer, e.prompts)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node enforce_rules: %w", err)
	}

	if err := graph.AddLambdaNode("execute_step",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.ExecuteStep(in, e.executor)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node execute_step: %w", err)
	}

	edges := [][2]string{
		{compose.START, "validate_request"},
		{"validate_request", "load_state"},
		{"load_state", "enforce_rules"},
		{"enforce_rules", "execute_step"},
		{"execute_step", compose.END},
	}

	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("engine.prepare_turn"))
	if err != nil {
		return nil, fmt.Errorf("compile prepare graph: %w", err)
	}
	return runner, nil
}

func (e *Engine) compileCommitGraph(
	ctx context.Context,
) (compose.Runnable[*nodex.GraphState, nodex.GraphOutput], error) {
	graph := compose.NewGraph[*nodex.GraphState, nodex.GraphOutput]()

	if err := graph.AddLambdaNode("save_state",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.SaveState(ctx, in, e.store, e.transcripts, e.handoff, e.cfg.SessionTTL)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node save_state: %w", err)
	}

	if err := graph.AddLambdaNode("finalize_reply",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (nodex.GraphOutput, error) {
			return nodex.FinalizeReply(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node finalize_reply: %w", err)
	}

	edges := [][2]string{
		{compose.START, "save_state"},
		{"save_state", "finalize_reply"},
		{"finalize_reply", compose.END},
	}

	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("engine.commit_turn"))
	if err != nil {
		return nil, fmt.Errorf("compile commit graph: %w", err)
	}
	return runner, nil
}
