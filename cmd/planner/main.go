// Command planner tracks a ballistic missile raid with a Walker
// constellation and writes the coverage timeline as JSON lines.
package main

func main() {
	Execute()
}
