// Command feedbackctl manages FeedbackFlow widgets and reads feedback from the terminal.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	application := newCLIApplication(os.Stdout, os.Stderr)
	if executeErr := application.rootCommand().ExecuteContext(ctx); executeErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", executeErr)
		stop()
		os.Exit(1)
	}
}
