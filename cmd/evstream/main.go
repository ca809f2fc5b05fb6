package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/capatazlib/go-evstream/config"
	"github.com/capatazlib/go-evstream/inspect"
)

var hostname string
var cfg config.Config
var ll *logrus.Logger

func main() {
	app := cli.NewApp()
	app.Name = "evstream"
	app.Usage = "assert on HCI event streams and inspect live streams"
	app.Before = setup
	app.Commands = []*cli.Command{
		{
			Name:   "check",
			Usage:  "replay an HCI event log and verify expectations in order",
			Action: check,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "log",
					Usage:    "file with one JSON encoded HCI event per line",
					Required: true,
				},
				&cli.StringFlag{
					Name:     "expect",
					Usage:    "YAML file with the list of expected events",
					Required: true,
				},
				&cli.DurationFlag{
					Name:  "timeout",
					Usage: "time to wait for the whole list of expectations (defaults to default_timeout)",
				},
			},
		},
		{
			Name:   "demo",
			Usage:  "run a simulated neighbor discovery with the inspector mounted",
			Action: demo,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "addr",
					Usage: "address the inspector listens on (defaults to inspector.addr)",
				},
				&cli.DurationFlag{
					Name:  "duration",
					Usage: "stop the demo after the given duration (0 runs until interrupted)",
				},
			},
		},
		{
			Name:    "streams",
			Aliases: []string{"ls"},
			Usage:   "list the streams of an inspector",
			Action:  streams,
		},
		{
			Name:   "history",
			Usage:  "show the latest events of a stream",
			Action: history,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "name",
					Required: true,
				},
				&cli.IntFlag{
					Name:  "n",
					Value: inspect.DefaultHistorySize,
				},
			},
		},
		{
			Name:   "watch",
			Usage:  "browse the streams of an inspector interactively",
			Action: interactive,
			Flags: []cli.Flag{
				&cli.DurationFlag{
					Name:  "refresh",
					Value: defaultRefresh,
				},
			},
		},
	}
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:        "host",
			Value:       "http://localhost:4784",
			Usage:       "inspector server to connect to",
			Destination: &hostname,
			EnvVars:     []string{"EVSTREAM_URL"},
		},
		&cli.StringFlag{
			Name:    "config",
			Usage:   "YAML configuration file",
			EnvVars: []string{config.EnvConfigPath},
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "overrides log.level of the configuration",
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the configuration and builds the logger shared by every
// command
func setup(c *cli.Context) error {
	var err error
	cfg, err = loadConfig(c.String("config"), os.LookupEnv)
	if err != nil {
		return errorf("invalid configuration: %s", err)
	}
	if level := c.String("log-level"); level != "" {
		cfg.Log.Level = level
	}
	ll, err = config.NewLogger(cfg.Log, os.Stderr)
	if err != nil {
		return errorf("invalid configuration: %s", err)
	}
	return nil
}

// loadConfig reads the given configuration file (or the defaults when path
// is empty) and applies the environment overrides
func loadConfig(path string, lookup func(string) (string, bool)) (config.Config, error) {
	if path == "" {
		return config.FromEnv(lookup)
	}
	loaded, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	return config.ApplyEnv(loaded, lookup)
}

func streams(c *cli.Context) error {
	client := inspect.NewClient(hostname, nil)
	ss, err := client.ListStreams(c.Context)
	if err != nil {
		return errorf("%s", err)
	}
	return printJSON(ss)
}

func history(c *cli.Context) error {
	client := inspect.NewClient(hostname, nil)
	h, err := client.History(c.Context, c.String("name"), c.Int("n"))
	if err != nil {
		return errorf("%s", err)
	}
	return printJSON(h)
}

func printJSON(value interface{}) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errorf("failed to encode response: %s", err)
	}
	fmt.Println(string(data))
	return nil
}

func errorf(m string, args ...interface{}) error {
	return cli.Exit(fmt.Sprintf(m, args...), 1)
}
