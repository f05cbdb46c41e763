package main

import "github.com/mcastellin/clustergossip/internal/cmd"

func main() {
	cmd.Execute()
}
