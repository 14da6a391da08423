package main

import "github.com/qubex-tech/VantageAI-CRM-sub003/cmd"

func main() {
	cmd.Execute()
}
