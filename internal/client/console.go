package client

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

const helpText = `commands:
  text <message>   send a text message
  hex <bytes>      send hex bytes (e.g. hex 48 65 6c 6c 6f)
  reconnect        reconnect to the server
  disconnect       close the connection
  help             show this help
  exit             quit the simulator`

// RunConsole drives the simulator from a line-oriented input until "exit" or
// the input closes. Command errors are printed and the loop continues.
func RunConsole(c *Client, in io.Reader, out io.Writer) {
	fmt.Fprintln(out, helpText)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprintf(out, "%s> ", c.deviceID)
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
		case line == "exit":
			return
		case line == "help":
			fmt.Fprintln(out, helpText)
		case line == "reconnect":
			c.Disconnect()
			time.Sleep(time.Second)
			if err := c.Connect(); err != nil {
				fmt.Fprintf(out, "reconnect failed: %v\n", err)
			}
		case line == "disconnect":
			c.Disconnect()
		case strings.HasPrefix(line, "text "):
			if err := c.SendText(strings.TrimPrefix(line, "text ")); err != nil {
				fmt.Fprintf(out, "send failed: %v\n", err)
			}
		case strings.HasPrefix(line, "hex "):
			data, err := parseHex(strings.TrimPrefix(line, "hex "))
			if err != nil {
				fmt.Fprintf(out, "invalid hex input: %v\n", err)
				continue
			}
			if err := c.SendBinary(data); err != nil {
				fmt.Fprintf(out, "send failed: %v\n", err)
			}
		default:
			fmt.Fprintf(out, "unknown command: %q (try 'help')\n", line)
		}
	}
}

func parseHex(s string) ([]byte, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, fmt.Errorf("no bytes given")
	}
	data := make([]byte, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseUint(f, 16, 8)
		if err != nil {
			return nil, fmt.Errorf("%q is not a hex byte", f)
		}
		data = append(data, byte(v))
	}
	return data, nil
}
