package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	gatt "github.com/XC-/blegatt"
	"github.com/XC-/blegatt/profile"
)

var (
	flgLogLevel = cli.StringFlag{Name: "log-level, l", Value: "info", EnvVar: "GATT_LOG_LEVEL", Usage: "log level (debug, info, warn, error)"}
	flgName     = cli.StringFlag{Name: "name, n", Usage: "device name, overriding the profile's"}
	flgAdapter  = cli.StringFlag{Name: "adapter, a", Value: "hci0", Usage: "BlueZ adapter"}
	flgAddr     = cli.StringFlag{Name: "addr", Usage: "address of the remote device"}
	flgWatch    = cli.BoolFlag{Name: "watch, w", Usage: "subscribe to every characteristic that notifies and print updates"}
)

func main() {
	app := cli.NewApp()

	app.Name = "gattdb"
	app.Usage = "Inspect GATT databases"
	app.Version = "0.1.0"
	app.Action = cli.ShowAppHelp
	app.Flags = []cli.Flag{flgLogLevel}
	app.Before = setup

	app.Commands = []cli.Command{
		{
			Name:      "check",
			Usage:     "Validate a profile",
			ArgsUsage: "<profile.yaml>",
			Action:    check,
		},
		{
			Name:      "dump",
			Aliases:   []string{"d"},
			Usage:     "Print the attribute table a profile lays out",
			ArgsUsage: "<profile.yaml>",
			Action:    dump,
			Flags:     []cli.Flag{flgName},
		},
		{
			Name:   "discover",
			Usage:  "Discover the GATT database of a connected device through BlueZ",
			Action: discover,
			Flags:  []cli.Flag{flgAdapter, flgAddr, flgWatch},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
		os.Exit(1)
	}
}

func setup(c *cli.Context) error {
	lvl, err := logrus.ParseLevel(c.String("log-level"))
	if err != nil {
		return err
	}
	logrus.SetLevel(lvl)
	return nil
}

// load builds the profile named by the first argument on a new server.
func load(c *cli.Context) (*gatt.Server, error) {
	if c.NArg() != 1 {
		return nil, errors.New("expected a profile file")
	}
	p, err := profile.LoadFile(c.Args().First())
	if err != nil {
		return nil, err
	}
	srv := gatt.NewServer(gatt.Logger(logrus.StandardLogger()))
	if err := p.Build(srv); err != nil {
		return nil, err
	}
	if n := c.String("name"); n != "" {
		srv.Option(gatt.Name(n))
	}
	if err := srv.Start(); err != nil {
		return nil, err
	}
	return srv, nil
}

func check(c *cli.Context) error {
	srv, err := load(c)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s: %d services, %d attributes\n", color.GreenString("ok"),
		c.Args().First(), len(srv.Services()), len(srv.Attributes()))
	return nil
}

func dump(c *cli.Context) error {
	srv, err := load(c)
	if err != nil {
		return err
	}
	writeTable(os.Stdout, srv.Attributes())
	return nil
}

var kindColor = map[string]*color.Color{
	"service":        color.New(color.FgHiCyan, color.Bold),
	"characteristic": color.New(color.FgHiGreen),
	"value":          color.New(color.FgHiYellow),
	"cccd":           color.New(color.FgHiMagenta),
	"descriptor":     color.New(color.FgHiMagenta),
}

func writeTable(w io.Writer, aa []gatt.Attribute) {
	fmt.Fprintf(w, "%-6s  %-14s  %-36s  %s\n", "HANDLE", "KIND", "TYPE", "VALUE")
	for _, a := range aa {
		kind := fmt.Sprintf("%-14s", a.Kind)
		if c, ok := kindColor[a.Kind]; ok {
			kind = c.Sprint(kind)
		}
		fmt.Fprintf(w, "0x%04x  %s  %-36s  %s\n", a.Handle, kind, a.Type, formatValue(a.Value))
	}
}

// formatValue prints printable values as quoted strings and the rest as hex.
func formatValue(b []byte) string {
	if b == nil {
		return "-"
	}
	s := string(b)
	printable := len(s) > 0 && strings.IndexFunc(s, func(r rune) bool {
		return r < 0x20 || r > 0x7e
	}) < 0
	if printable {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprintf("% x", b)
}
