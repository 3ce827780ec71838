package main

import (
	"github.com/tanpawarit/theo-ai/cmd"
	_ "github.com/tanpawarit/theo-ai/pkg/logger/autoload"
)

func main() {
	cmd.Execute()
}
