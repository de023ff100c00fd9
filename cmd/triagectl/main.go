// Command triagectl is the operator command line for the triage pipeline.
package main

import "github.com/symptom-triage-server/internal/cli"

func main() {
	cli.Execute()
}
