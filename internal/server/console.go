package server

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Console drives the Router from a line-oriented operator input, stdin in the
// server binary. "exit" triggers a full shutdown; everything else is handed
// to the router and its errors are printed, never fatal.
type Console struct {
	router *Router
	out    io.Writer
	stop   func()
}

func NewConsole(router *Router, out io.Writer, stop func()) *Console {
	return &Console{router: router, out: out, stop: stop}
}

// Run blocks until the operator exits or the input closes.
func (c *Console) Run(in io.Reader) {
	fmt.Fprintln(c.out, HelpText)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(c.out, "harness> ")
		if !scanner.Scan() {
			// Input closed (EOF or piped input drained). Not a shutdown
			// request: the server keeps serving until stopped elsewhere.
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "exit" {
			c.stop()
			return
		}

		result, err := c.router.Execute(line)
		if err != nil {
			fmt.Fprintln(c.out, err)
			continue
		}
		if result != "" {
			fmt.Fprintln(c.out, result)
		}
	}
}
