// Package mock provides test doubles for mcpgate: configurable upstream MCP
// servers, HTTP hosting for them, a mock OAuth 2.1 authorization server and
// an OAuth-protected MCP server.
//
// Upstream servers are described by ServerConfig, either in code or from a
// YAML file:
//
//	name: github
//	tools:
//	  - name: search
//	    description: "Search issues"
//	    responses:
//	      - condition:
//	          query: "empty"
//	        response: "[]"
//	      - response: "found 3 issues"
//	prompts:
//	  - name: summarize
//	    text: "Summarize the discussion"
//	resources:
//	  - uri: "file:///readme.md"
//	    name: readme
//	    text: "hello"
//	templates:
//	  - uriTemplate: "file:///docs/{name}"
//	    name: docs
//
// The same file can be served over stdio with `mcpgate mock-server --config
// file.yaml`, which is how subprocess targets are exercised in tests.
package mock
