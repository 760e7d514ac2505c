/*
Package console reads operator commands from a line-oriented input (stdin in production).

	q  close every session and exit
	t  print a fresh admin API token
*/
package console

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"relaychat/internal/pkg/logx"
)

const (
	CommandQuit  = "q"
	CommandToken = "t"
)

// Console dispatches operator commands.
type Console struct {
	in  io.Reader
	out io.Writer

	// onQuit runs when the operator enters q. It is expected not to return.
	onQuit func()

	// mintToken may be nil when the admin API is disabled.
	mintToken func() (string, error)

	logger zerolog.Logger
}

// New returns a Console reading from in and writing replies to out.
func New(in io.Reader, out io.Writer, onQuit func(), mintToken func() (string, error)) *Console {
	return &Console{
		in:        in,
		out:       out,
		onQuit:    onQuit,
		mintToken: mintToken,
		logger:    logx.Component("console"),
	}
}

// Run reads commands until the input ends or q is handled.
// It returns the input's read error, or nil at end of input.
func (c *Console) Run() error {
	scanner := bufio.NewScanner(c.in)

	for scanner.Scan() {
		switch cmd := strings.TrimSpace(scanner.Text()); cmd {
		case "":
		case CommandQuit:
			c.logger.Info().Msg("Quit requested from console.")
			c.onQuit()
			return nil
		case CommandToken:
			c.printToken()
		default:
			fmt.Fprintf(c.out, "unknown command %q (q: quit, t: admin token)\n", cmd)
		}
	}

	return scanner.Err()
}

func (c *Console) printToken() {
	if c.mintToken == nil {
		fmt.Fprintln(c.out, "admin API is disabled")
		return
	}

	token, err := c.mintToken()
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to mint admin token.")
		fmt.Fprintln(c.out, "could not mint admin token")
		return
	}

	fmt.Fprintln(c.out, token)
}
