// Package proxy aggregates a set of target clients into one virtual MCP
// server.
//
// A Server owns an ordered list of targets and exposes their tools,
// prompts and resources as a single flat namespace. Listing fans out to
// every target in order; a target that fails is logged and skipped so one
// broken backend never fails the aggregate. Each list rebuilds the routing
// table used by the matching invoke operation, so callers must list before
// they call:
//
//	tools, _ := p.ListTools(ctx)
//	result, err := p.CallTool(ctx, tools[0].Name, args)
//
// Structural changes (adding, removing or updating a target) and list
// changes announced by the targets themselves are reported to the listener
// installed with SetListChangeListener, from a separate goroutine after
// the triggering call has returned.
package proxy
