package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	c := &client{logger: newLogger(os.Stderr)}
	if err := run(context.Background(), c, newRootCmd(c)); err != nil {
		fmt.Fprintln(os.Stderr, userMessage(err))
		os.Exit(1)
	}
}
