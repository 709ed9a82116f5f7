package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sharisseji/Waterloop-Host-Application/internal/config"
	"github.com/sharisseji/Waterloop-Host-Application/internal/logger"
	"github.com/sharisseji/Waterloop-Host-Application/pkg/client"
	"github.com/sharisseji/Waterloop-Host-Application/pkg/types"
)

var (
	target    string
	role      string
	recipient string
	prefix    string
	listen    bool
	logLevel  string
	retries   uint64
)

var rootCmd = &cobra.Command{
	Use:   "relay-client",
	Short: "Open a relay stream and send stdin lines as commands",
	Long: `relay-client joins the relay under --role. Each stdin line is sent as a
command to --to. A line of the form "@recipient command" overrides the
recipient for that line. Messages routed to the role are printed to stdout.

With --listen the client sends nothing and only prints what it receives,
like the motor-control endpoint. The stream is reopened with backoff when
the relay goes away.`,
	SilenceUsage: true,
	RunE:         runClient,
}

func runClient(cmd *cobra.Command, args []string) error {
	cfg := config.DefaultLoggingConfig()
	cfg.Level = logLevel
	cfg.Output = "stderr"
	log, err := logger.New(cfg)
	if err != nil {
		return err
	}
	defer log.Close()

	r, err := types.ParseRole(role)
	if err != nil {
		return err
	}

	c, err := client.New(target, client.Options{
		DialTimeout:   5 * time.Second,
		CommandPrefix: prefix,
		MaxReconnects: retries,
		Logger:        log,
	})
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var lines <-chan string
	if !listen {
		lines = readLines(os.Stdin)
	}

	return c.Run(ctx, r, func(ctx context.Context, s *client.Stream) error {
		recvErr := make(chan error, 1)
		go func() {
			for {
				msg, err := s.Recv()
				if err != nil {
					recvErr <- err
					return
				}
				fmt.Fprintf(os.Stdout, "%s -> %s: %s\n", msg.Sender, msg.Recipient, msg.Command)
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case err := <-recvErr:
				if err == io.EOF {
					return fmt.Errorf("relay closed the stream")
				}
				return err
			case line, ok := <-lines:
				if !ok {
					// stdin done; half-close and keep printing until the relay ends the stream
					_ = s.CloseSend()
					lines = nil
					if err := <-recvErr; err != nil && err != io.EOF {
						return err
					}
					return nil
				}
				to, command := parseLine(line, recipient)
				if command == "" {
					continue
				}
				if err := s.Send(to, command); err != nil {
					return err
				}
			}
		}
	})
}

// parseLine splits "@recipient command" lines; other lines go to def
func parseLine(line, def string) (string, string) {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "@") {
		to, command, _ := strings.Cut(line[1:], " ")
		return to, strings.TrimSpace(command)
	}
	return def, line
}

func readLines(r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			ch <- scanner.Text()
		}
	}()
	return ch
}

func main() {
	flags := rootCmd.Flags()
	flags.StringVar(&target, "target", "localhost:50051", "Relay address, host:port or unix:///path")
	flags.StringVar(&role, "role", string(types.RoleDashboard), "Role to register under")
	flags.StringVar(&recipient, "to", string(types.RoleMotorControl), "Default recipient role")
	flags.StringVar(&prefix, "prefix", "", `Command prefix added to outgoing commands, e.g. "motor:"`)
	flags.BoolVar(&listen, "listen", false, "Only print received messages")
	flags.StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flags.Uint64Var(&retries, "max-reconnects", 0, "Give up after this many failed reconnects; 0 retries forever")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
