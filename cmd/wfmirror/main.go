// wfmirror mirrors a remote outline into a local cache and serves it to
// agents over MCP: hierarchical reads, fuzzy search, and optimistic writes
// without one remote call per operation.
package main

func main() {
	Execute()
}
