// The main package for the vacancies executable.
package main

import (
	"github.com/difranardo/vacancies-scrapper/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
