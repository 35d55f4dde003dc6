// Command solixctl reads and controls an Anker SOLIX EV charger over Modbus TCP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	modbus "github.com/hootrhino/solix-modbus"
	"github.com/hootrhino/solix-modbus/charger"
)

const usage = `usage: solixctl [flags] <command> [args]

commands:
  read-u16 <register>           read one register
  read-u32 <register>           read two registers as one 32-bit value
  write-u16 <register> <value>  write one register
  status                        read charging status, power, duration and energy
  sensors                       read every sensor
  start | stop | boost          charging commands
  set-current <amps>            set the max charging current (0..32)
  set-phase <phase>             auto, single_phase or three_phase
  set-timeout <seconds>         set the charger timeout (> 5)
  poll [poll flags]             poll continuously, optionally bridging to MQTT and Prometheus

flags:
`

type globalFlags struct {
	host       string
	port       int
	offset     int
	wordOrder  string
	unit       uint
	timeout    time.Duration
	configPath string
	logLevel   string
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("solixctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var g globalFlags
	fs.StringVar(&g.host, "host", "", "charger host name or IP address")
	fs.IntVar(&g.port, "port", charger.DefaultPort, "Modbus TCP port")
	fs.IntVar(&g.offset, "offset", charger.DefaultAddressOffset, "address offset added to every register")
	fs.StringVar(&g.wordOrder, "word-order", string(charger.DefaultWordOrder), "32-bit word order, hi_lo or lo_hi")
	fs.UintVar(&g.unit, "unit", modbus.DefaultUnitID, "Modbus unit ID")
	fs.DurationVar(&g.timeout, "timeout", modbus.DefaultTimeout, "connect, send and read timeout")
	fs.StringVar(&g.configPath, "config", "", "JSON config file; flags given explicitly override it")
	fs.StringVar(&g.logLevel, "log-level", "warning", "log level: debug, info, warning, error or none")
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	logger, err := modbus.NewConsoleLogger(stderr, g.logLevel, "solixctl")
	if err != nil {
		fmt.Fprintln(stderr, "solixctl:", err)
		return 2
	}

	config, err := buildConfig(fs, g)
	if err != nil {
		fmt.Fprintln(stderr, "solixctl:", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := dispatch(ctx, config, logger, fs.Arg(0), fs.Args()[1:], stdout); err != nil {
		var ue usageError
		if errors.As(err, &ue) {
			fmt.Fprintln(stderr, "solixctl:", err)
			fs.Usage()
			return 2
		}
		fmt.Fprintln(stderr, "solixctl:", err)
		return 1
	}
	return 0
}

// buildConfig layers defaults, the config file and explicitly set flags.
func buildConfig(fs *flag.FlagSet, g globalFlags) (charger.Config, error) {
	config := charger.DefaultConfig()
	if g.configPath != "" {
		loaded, err := charger.LoadConfig(g.configPath)
		if err != nil {
			return config, err
		}
		config = loaded
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			config.Host = g.host
		case "port":
			config.Port = g.port
		case "offset":
			config.AddressOffset = g.offset
		case "word-order":
			config.WordOrder = g.wordOrder
		case "unit":
			config.UnitID = uint8(g.unit)
		case "timeout":
			// Whole seconds, rounded up.
			config.Timeout = int((g.timeout + time.Second - 1) / time.Second)
		}
	})
	if g.unit > 0xFF {
		return config, fmt.Errorf("unit ID %d outside 0..255", g.unit)
	}
	return config, nil
}

type usageError string

func (e usageError) Error() string { return string(e) }

func newClient(config charger.Config, logger zerolog.Logger, opts ...modbus.Option) (*modbus.Client, error) {
	settings, err := config.Settings()
	if err != nil {
		return nil, err
	}
	opts = append(config.ClientOptions(), append(opts, modbus.WithLogger(logger))...)
	return modbus.NewClient(settings, opts...)
}

func intArg(args []string, i int, name string) (int, error) {
	if len(args) <= i {
		return 0, usageError("missing " + name)
	}
	v, err := strconv.Atoi(args[i])
	if err != nil {
		return 0, usageError(fmt.Sprintf("invalid %s %q", name, args[i]))
	}
	return v, nil
}

func dispatch(ctx context.Context, config charger.Config, logger zerolog.Logger, cmd string, args []string, stdout io.Writer) error {
	if cmd == "poll" {
		return runPoll(ctx, config, logger, args)
	}

	client, err := newClient(config, logger)
	if err != nil {
		return err
	}
	ctrl := charger.NewController(client, logger)

	switch cmd {
	case "read-u16":
		register, err := intArg(args, 0, "register")
		if err != nil {
			return err
		}
		v, err := client.ReadU16(ctx, register)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, v)
	case "read-u32":
		register, err := intArg(args, 0, "register")
		if err != nil {
			return err
		}
		v, err := client.ReadU32(ctx, register)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, v)
	case "write-u16":
		register, err := intArg(args, 0, "register")
		if err != nil {
			return err
		}
		value, err := intArg(args, 1, "value")
		if err != nil {
			return err
		}
		return client.WriteU16(ctx, register, value)
	case "status":
		s, err := charger.ReadSnapshot(ctx, client)
		if err != nil {
			return err
		}
		printReadings(stdout, s.Readings())
	case "sensors":
		readings, err := charger.ReadAll(ctx, client)
		if err != nil {
			return err
		}
		printReadings(stdout, readings)
	case "start":
		return ctrl.StartCharging(ctx)
	case "stop":
		return ctrl.StopCharging(ctx)
	case "boost":
		return ctrl.Boost(ctx)
	case "set-current":
		amps, err := intArg(args, 0, "current")
		if err != nil {
			return err
		}
		return ctrl.SetMaxCurrent(ctx, amps)
	case "set-timeout":
		seconds, err := intArg(args, 0, "timeout")
		if err != nil {
			return err
		}
		return ctrl.SetTimeout(ctx, seconds)
	case "set-phase":
		if len(args) == 0 {
			return usageError("missing phase")
		}
		phase, err := charger.ParsePhase(args[0])
		if err != nil {
			return err
		}
		return ctrl.SetPhase(ctx, phase)
	default:
		return usageError(fmt.Sprintf("unknown command %q", cmd))
	}
	return nil
}

func printReadings(w io.Writer, readings []charger.Reading) {
	for _, r := range readings {
		unit := ""
		if s, ok := charger.SensorByKey(r.Key); ok && s.Unit != "" {
			unit = " " + s.Unit
		}
		fmt.Fprintf(w, "%-24s %s%s\n", r.Key, r.State, unit)
	}
}
