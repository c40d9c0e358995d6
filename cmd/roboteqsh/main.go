// roboteqsh is an interactive bench console for talking to a motor
// controller over its serial console: raw exchanges, configuration
// queries, open-loop go commands and EEPROM saves.
package main

//go-build: CGO_ENABLED=0

import (
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell"

	"github.com/jonbinney/roboteq.go/pkg/roboteq"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool

	Shell     *ishell.Shell
	Transport *roboteq.Transport
}

const (
	shellKey          = "$shell"
	unconnectedPrompt = "[none] > "
)

var (
	// flags

	evalOnly bool
	portPath string

	// commands
	commands = []*ishell.Cmd{
		&OpenCmd,
		&CloseCmd,
		&RawCmd,
		&QueryCmd,
		&GoCmd,
		&SaveCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.StringVar(&portPath, "port", "", "Serial port to open on start.")
}

// New creates a new shell.
func New() *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		Shell:       ishell.New(),
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unconnectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeOpen wraps command func requires an open port.
func MustBeOpen(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Transport == nil {
			c.Err(fmt.Errorf("no port open"))
			return
		}
		fn(c)
	}
}

// Open opens the serial port and turns command echo off.
func (s *Shell) Open(path string) error {
	transport, err := roboteq.Open(path)
	if err != nil {
		return err
	}
	// The reply to the first command is its own echo; drop it and any
	// residue from before echo was turned off.
	if _, err := transport.Exchange(roboteq.ConfigCmd("ECHOF", 1)); err != nil {
		transport.Close()
		return err
	}
	if err := transport.Drain(); err != nil {
		transport.Close()
		return err
	}
	if s.Transport != nil {
		s.Transport.Close()
	}
	s.Transport = transport
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", path))
	return nil
}

// Close closes the current port.
func (s *Shell) Close() {
	if s.Transport != nil {
		s.Transport.Close()
		s.Transport = nil
		s.Shell.SetPrompt(unconnectedPrompt)
	}
}

// Exchange sends a framed line and prints the reply.
func (s *Shell) Exchange(c *ishell.Context, request string) {
	line, err := s.Transport.Exchange(request)
	if err != nil {
		c.Err(err)
		return
	}
	if roboteq.IsAck(line) {
		c.Println("OK")
		return
	}
	c.Println(line)
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if portPath != "" {
		if s.Interactive {
			s.Shell.Printf("Opening %s ...\n", portPath)
		}
		if err := s.Open(portPath); err != nil {
			log.Fatalf("open %q failed: %v", portPath, err)
		}
	}

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

func intArgs(args []string) ([]int64, error) {
	vals := make([]int64, len(args))
	for n, a := range args {
		v, err := strconv.ParseInt(a, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q", a)
		}
		vals[n] = v
	}
	return vals, nil
}

var (
	// OpenCmd opens a serial port.
	OpenCmd = ishell.Cmd{
		Name:    "open",
		Aliases: []string{"o"},
		Help:    "PORT",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Err(fmt.Errorf("port expected"))
				return
			}
			if err := ShellFrom(c).Open(c.Args[0]); err != nil {
				c.Err(err)
			}
		},
	}

	// CloseCmd closes the current port.
	CloseCmd = ishell.Cmd{
		Name:    "close",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Close()
		},
	}

	// RawCmd sends an arbitrary line as-is.
	RawCmd = ishell.Cmd{
		Name: "raw",
		Help: "LINE...",
		Func: MustBeOpen(func(c *ishell.Context) {
			if len(c.Args) == 0 {
				c.Err(fmt.Errorf("line expected"))
				return
			}
			s := ShellFrom(c)
			s.Exchange(c, strings.Join(c.Args, " ")+"\r")
		}),
	}

	// QueryCmd reads an operational value.
	QueryCmd = ishell.Cmd{
		Name:    "query",
		Aliases: []string{"q"},
		Help:    "KEY [ARG...]",
		Func: MustBeOpen(func(c *ishell.Context) {
			if len(c.Args) == 0 {
				c.Err(fmt.Errorf("key expected"))
				return
			}
			args, err := intArgs(c.Args[1:])
			if err != nil {
				c.Err(err)
				return
			}
			s := ShellFrom(c)
			s.Exchange(c, roboteq.QueryCmd(strings.ToUpper(c.Args[0]), args...))
		}),
	}

	// GoCmd issues a motor command in thousandths of full scale.
	GoCmd = ishell.Cmd{
		Name:    "go",
		Aliases: []string{"g"},
		Help:    "CHANNEL VALUE",
		Func: MustBeOpen(func(c *ishell.Context) {
			args, err := intArgs(c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			if len(args) != 2 {
				c.Err(fmt.Errorf("channel and value expected"))
				return
			}
			s := ShellFrom(c)
			s.Exchange(c, roboteq.RuntimeCmd("g", args...))
		}),
	}

	// SaveCmd persists the current configuration to EEPROM.
	SaveCmd = ishell.Cmd{
		Name: "save",
		Help: "",
		Func: MustBeOpen(func(c *ishell.Context) {
			s := ShellFrom(c)
			s.Exchange(c, roboteq.MaintenanceCmd("EESAV"))
		}),
	}
)

func main() {
	flag.Parse()
	New().Run(flag.Args()...)
}
