// Command advisor is the terminal client of the career advisor.
package main

import "github.com/ashureev/career-advisor/internal/cli"

func main() {
	cli.Execute()
}
