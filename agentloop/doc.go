// Package agentloop implements a terminal agent loop driven by JSON steps.
//
// The model answers every request with a single JSON object whose "step"
// field is one of start, plan, action, observe, output or end. A Session
// appends each decoded step to its Conversation, runs the named tool for
// action steps and appends the result as an observe step, and keeps asking
// the model until it produces a terminal step.
//
// # Architecture
//
//   - Session: owns the Conversation and the ToolRegistry and drives the
//     step loop (Submit).
//   - DecodeStep: turns raw model output into a Step, tolerating prose and
//     missing fields.
//   - Invoker: binds positional or named ToolInput to a tool's parameters
//     and folds tool failures into observation text.
//   - Profile: instruction text and terminal step ("coder" ends with
//     output, "workflow" ends with end).
//   - ExecutionEnvironment: where tools touch files and run commands.
//   - EventEmitter: synchronous, typed events for the host application.
//
// # Quick Start
//
//	registry, _ := agentloop.NewCoreToolRegistry(0)
//	env := agentloop.NewLocalExecutionEnvironment("")
//	session := agentloop.NewSession(client, agentloop.NewCoderProfile(), registry, env, nil,
//	    agentloop.WithEventHandler(func(e agentloop.SessionEvent) {
//	        fmt.Printf("[%s] %v\n", e.Kind, e.Data)
//	    }))
//	defer session.Close()
//
//	answer, err := session.Submit(ctx, "create a hello file")
package agentloop
