package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"tinygo.org/x/bluetooth"

	"mxwprint/internal/bitmap"
	"mxwprint/internal/config"
	"mxwprint/internal/journal"
	"mxwprint/internal/logging"
	"mxwprint/internal/session"
)

var (
	logLevel   string
	configPath string
	deviceFlag string

	intensityFlag int
	dryRun        bool
	historyLimit  int
)

func init() {
	printCmd.Flags().IntVar(&intensityFlag, "intensity", -1, "Print intensity 0-255 (default from config)")
	printCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Render and encode the image without connecting")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of history entries to show")
}

// loadConfig merges the config file (if any) with command-line overrides.
func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if deviceFlag != "" {
		cfg.Device = deviceFlag
	}
	if intensityFlag >= 0 {
		if intensityFlag > 255 {
			return cfg, fmt.Errorf("intensity %d out of range 0-255", intensityFlag)
		}
		cfg.Intensity = uint8(intensityFlag)
	}
	return cfg, nil
}

func newSession(cfg config.Config) (*session.Session, error) {
	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("couldn't enable bluetooth adapter: %w", err)
	}

	opts := cfg.SessionOptions()
	opts.Logger = logging.L()
	connector := &session.BluetoothConnector{
		Adapter:          adapter,
		Identifier:       cfg.Device,
		DiscoveryTimeout: cfg.DiscoveryTimeout.Std(),
		Logger:           logging.L(),
	}
	return session.New(connector, opts), nil
}

var printCmd = &cobra.Command{
	Use:   "print <image>",
	Short: "Print an image file",
	Long: `Renders a PNG or JPEG to the printer's 384-pixel width (scaled,
gamma-corrected and Floyd-Steinberg dithered) and prints it.`,
	Args: cobra.ExactArgs(1),
	RunE: runPrint,
}

func runPrint(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	rows, err := bitmap.LoadRows(args[0])
	if err != nil {
		return err
	}
	buffer, err := bitmap.BuildBuffer(rows)
	if err != nil {
		return err
	}
	job, err := session.NewJob(buffer)
	if err != nil {
		return err
	}

	if dryRun {
		fmt.Printf("Rendered %d lines (%d bytes encoded); not connecting.\n", job.LineCount(), len(job.Buffer))
		return nil
	}

	s, err := newSession(cfg)
	if err != nil {
		return err
	}
	result, printErr := s.Print(job)

	if cfg.Journal != "" {
		recordAttempt(cfg, result, printErr)
	}

	if printErr != nil {
		var rerr *session.RejectedError
		if errors.As(printErr, &rerr) {
			return fmt.Errorf("printer declined the job (check paper and battery): %w", printErr)
		}
		return fmt.Errorf("print failed during %s: %w", result.FailedAt, printErr)
	}

	if result.CompletionConfirmed {
		fmt.Printf("Printed %d lines.\n", result.LineCount)
	} else {
		fmt.Printf("Sent %d lines; printer did not confirm completion.\n", result.LineCount)
	}
	return nil
}

func recordAttempt(cfg config.Config, result *session.Result, printErr error) {
	j, err := journal.Open(cfg.Journal)
	if err != nil {
		logging.L().Warn("couldn't open journal", zap.Error(err))
		return
	}
	defer j.Close()

	outcome := "done"
	if printErr != nil {
		outcome = "failed at " + result.FailedAt.String()
	}
	entry := journal.Entry{
		Device:              cfg.Device,
		LineCount:           result.LineCount,
		Intensity:           cfg.Intensity,
		Outcome:             outcome,
		CompletionConfirmed: result.CompletionConfirmed,
	}
	if _, err := j.Record(entry); err != nil {
		logging.L().Warn("couldn't record print attempt", zap.Error(err))
	}
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query printer status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		s, err := newSession(cfg)
		if err != nil {
			return err
		}

		report, err := s.Status()
		if err != nil {
			return err
		}
		if report.OK {
			fmt.Printf("Printer OK. State 0x%02X, battery %d%%.\n", report.State, report.BatteryPercent)
		} else {
			fmt.Printf("Printer reports error 0x%02X. State 0x%02X, battery %d%%.\n",
				report.ErrorCode, report.State, report.BatteryPercent)
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Query printer firmware version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		s, err := newSession(cfg)
		if err != nil {
			return err
		}

		payload, err := s.FirmwareVersion()
		if err != nil {
			return err
		}
		if isPrintable(payload) {
			fmt.Printf("Firmware: %s\n", payload)
		} else {
			fmt.Printf("Firmware (raw): %x\n", payload)
		}
		return nil
	},
}

func isPrintable(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	for _, c := range b {
		if c < 0x20 || c > 0x7E {
			return false
		}
	}
	return true
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent print attempts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Journal == "" {
			return fmt.Errorf("no journal configured; set 'journal' in the config file")
		}

		j, err := journal.Open(cfg.Journal)
		if err != nil {
			return err
		}
		defer j.Close()

		entries, err := j.Recent(historyLimit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No print attempts recorded.")
			return nil
		}
		for _, e := range entries {
			confirmed := ""
			if e.Outcome == "done" && !e.CompletionConfirmed {
				confirmed = " (completion unconfirmed)"
			}
			device := e.Device
			if device == "" {
				device = "(scanned)"
			}
			fmt.Printf("%s  %-20s %4s lines  intensity %3d  %s%s\n",
				e.CreatedAt.Local().Format("2006-01-02 15:04"),
				device,
				strconv.Itoa(e.LineCount),
				e.Intensity,
				e.Outcome,
				confirmed,
			)
		}
		return nil
	},
}
