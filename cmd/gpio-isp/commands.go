package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sweeney/gpio-isp/internal/bitbang"
	"github.com/sweeney/gpio-isp/internal/gpio"
	"github.com/sweeney/gpio-isp/internal/isp"
)

func newCmdCmd(a *app) *cobra.Command {
	var (
		repeat  int
		decimal bool
	)
	c := &cobra.Command{
		Use:   "cmd [b0 b1 b2 b3 | word]",
		Short: "Send a raw four byte command and print each response",
		Long: `Send a four byte serial programming command and print the four bytes
clocked back. With no arguments the configured command is sent.

Examples:
  gpio-isp cmd AC 53 00 00
  gpio-isp cmd 30000000 --repeat 3
  gpio-isp cmd 0x30 0x00 0x01 0x00 --decimal`,
		Args: func(cmd *cobra.Command, args []string) error {
			switch len(args) {
			case 0, 1, 4:
				return nil
			}
			return fmt.Errorf("accepts 0, 1 or 4 arg(s), received %d", len(args))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if repeat < 1 {
				return fmt.Errorf("--repeat must be at least 1, got %d", repeat)
			}
			command, err := parseCommandArgs(args, a.cfg.Command)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return a.withTransport(func(tr *bitbang.Transport) error {
				for i := 0; i < repeat; i++ {
					res, err := tr.Command(command)
					if err != nil {
						return err
					}
					a.log.Debug("exchange", "command", command.String(), "response", isp.Command(res).String())
					printResponse(out, res, decimal)
				}
				return nil
			})
		},
	}
	c.Flags().IntVarP(&repeat, "repeat", "n", 1, "number of times to send the command")
	c.Flags().BoolVar(&decimal, "decimal", false, "print each response byte in decimal on its own line")
	return c
}

func parseCommandArgs(args []string, fallback string) (isp.Command, error) {
	switch len(args) {
	case 0:
		return isp.ParseCommand(fallback)
	case 1:
		return isp.ParseCommand(args[0])
	default:
		return isp.ParseBytes(args)
	}
}

func printResponse(w io.Writer, res [4]byte, decimal bool) {
	if !decimal {
		fmt.Fprintln(w, isp.Command(res))
		return
	}
	for _, b := range res {
		fmt.Fprintf(w, "%d\n", b)
	}
}

func newSignatureCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "signature",
		Short: "Enter programming mode and read the device signature",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return a.withTransport(func(tr *bitbang.Transport) error {
				p := &isp.Programmer{T: tr}
				if err := p.Enable(); err != nil {
					return err
				}
				sig, err := p.Signature()
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "signature: %s\n", sig)
				part, ok := isp.LookupPart(sig)
				switch {
				case ok:
					fmt.Fprintf(out, "part:      %s (%d KiB flash)\n", part.Name, part.FlashSize>>10)
				case !sig.Valid():
					a.log.Warn("signature does not look like an AVR part; check wiring and target power", "signature", sig.String())
					fmt.Fprintln(out, "part:      unknown")
				default:
					fmt.Fprintln(out, "part:      unknown")
				}
				return nil
			})
		},
	}
}

func newFusesCmd(a *app) *cobra.Command {
	var asJSON bool
	c := &cobra.Command{
		Use:   "fuses",
		Short: "Enter programming mode and read the fuse and lock bytes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return a.withTransport(func(tr *bitbang.Transport) error {
				p := &isp.Programmer{T: tr}
				if err := p.Enable(); err != nil {
					return err
				}
				f, err := p.Fuses()
				if err != nil {
					return err
				}
				if asJSON {
					return json.NewEncoder(out).Encode(f)
				}
				fmt.Fprintln(out, f)
				return nil
			})
		},
	}
	c.Flags().BoolVar(&asJSON, "json", false, "print the bytes as JSON")
	return c
}

func newReadCmd(a *app) *cobra.Command {
	var (
		addr   int
		count  int
		output string
	)
	c := &cobra.Command{
		Use:   "read flash|eeprom",
		Short: "Enter programming mode and dump flash or EEPROM",
		Long: `Read count bytes of flash or EEPROM from addr and print them as hex,
sixteen bytes per line. With --output the raw bytes are written to a file
instead.

Examples:
  gpio-isp read flash --count 64
  gpio-isp read eeprom --addr 0x10 -n 16
  gpio-isp read flash --count 32768 -o dump.bin`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"flash", "eeprom"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var read func(p *isp.Programmer) ([]byte, error)
			switch args[0] {
			case "flash":
				read = func(p *isp.Programmer) ([]byte, error) { return p.Flash(addr, count) }
			case "eeprom":
				read = func(p *isp.Programmer) ([]byte, error) { return p.EEPROM(addr, count) }
			default:
				return fmt.Errorf("unknown memory %q: want flash or eeprom", args[0])
			}

			var data []byte
			err := a.withTransport(func(tr *bitbang.Transport) error {
				p := &isp.Programmer{T: tr}
				if err := p.Enable(); err != nil {
					return err
				}
				var err error
				data, err = read(p)
				return err
			})
			if err != nil {
				return err
			}
			if output != "" {
				if err := os.WriteFile(output, data, 0o644); err != nil {
					return fmt.Errorf("write %s: %w", output, err)
				}
				a.log.Info("memory saved", "memory", args[0], "bytes", len(data), "file", output)
				return nil
			}
			dumpHex(cmd.OutOrStdout(), addr, data)
			return nil
		},
	}
	c.Flags().IntVar(&addr, "addr", 0, "first byte address")
	c.Flags().IntVarP(&count, "count", "n", 256, "number of bytes to read")
	c.Flags().StringVarP(&output, "output", "o", "", "write the raw bytes to this file")
	return c
}

func dumpHex(w io.Writer, addr int, data []byte) {
	for off := 0; off < len(data); off += 16 {
		end := min(off+16, len(data))
		fmt.Fprintf(w, "%06X: % X\n", addr+off, data[off:end])
	}
}

func newEraseCmd(a *app) *cobra.Command {
	var force bool
	c := &cobra.Command{
		Use:   "erase",
		Short: "Enter programming mode and chip erase the target",
		Long: `Chip erase clears flash and the lock bits, and EEPROM too unless the
EESAVE fuse is programmed. It needs --force.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return errors.New("erase clears the target's flash; pass --force to proceed")
			}
			out := cmd.OutOrStdout()
			return a.withTransport(func(tr *bitbang.Transport) error {
				p := &isp.Programmer{T: tr}
				if err := p.Enable(); err != nil {
					return err
				}
				if err := p.Erase(); err != nil {
					return err
				}
				fmt.Fprintln(out, "erased")
				return nil
			})
		},
	}
	c.Flags().BoolVar(&force, "force", false, "confirm the erase")
	return c
}

func newPinsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pins",
		Short: "Print the resolved backend and pin assignment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "backend     %s\n", a.cfg.Backend)
			assign := a.cfg.Assignment()
			for _, role := range gpio.Roles {
				p := assign[role]
				fmt.Fprintf(out, "%-11s %-4s %-8s 0x%08X\n", role, p, p.Polarity, p.Packed())
			}
			return nil
		},
	}
}
