// Command zrpc-call dials a zRPC server and performs one unary call,
// printing the response payload to stdout. Mirrors zrpc-serve's adapter
// selection so the pair exercises both reference transports end to end.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ghostkellz/zrpc/quicmux"
	"github.com/ghostkellz/zrpc/rpc"
	"github.com/ghostkellz/zrpc/spi"
	"github.com/ghostkellz/zrpc/wsmux"
	"github.com/ghostkellz/zrpc/zlog"
)

func main() {
	app := &cli.App{
		Name:  "zrpc-call",
		Usage: "Make a single unary zRPC call and print the response",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "scheme",
				Usage: "Adapter to dial: zr, ws, or wss",
				Value: "zr",
			},
			&cli.StringFlag{
				Name:     "endpoint",
				Usage:    "Endpoint to dial, e.g. zr://127.0.0.1:9443",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "method",
				Usage: "Service/Method to invoke",
				Value: "zrpc.Echo/Say",
			},
			&cli.StringFlag{
				Name:  "data",
				Usage: "Request payload; reads stdin if omitted",
			},
			&cli.StringFlag{
				Name:  "ca",
				Usage: "Path to a PEM CA bundle trusted for server verification",
			},
			&cli.DurationFlag{
				Name:  "deadline",
				Usage: "Call deadline",
				Value: 10 * time.Second,
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn, or error",
				Value: "warn",
			},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	log := zlog.New(zlog.Config{Level: c.String("log-level")})

	payload := []byte(c.String("data"))
	if c.String("data") == "" {
		stdin, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		payload = stdin
	}

	var tlsCfg *spi.TlsConfig
	if caPath := c.String("ca"); caPath != "" {
		pemBytes, err := os.ReadFile(caPath)
		if err != nil {
			return fmt.Errorf("reading CA bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pemBytes) {
			return fmt.Errorf("no certificates found in %s", caPath)
		}
		tlsCfg = &spi.TlsConfig{CA: &tls.Config{RootCAs: pool}, VerifyPeer: true}
	}

	var transport spi.Transport
	switch c.String("scheme") {
	case "zr":
		transport = &quicmux.Transport{Log: log}
	case "ws", "wss":
		transport = &wsmux.Transport{Log: log}
	default:
		return fmt.Errorf("unknown --scheme %q (want zr, ws, or wss)", c.String("scheme"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.Duration("deadline")+5*time.Second)
	defer cancel()

	client, err := rpc.Dial(ctx, transport, c.String("endpoint"), tlsCfg, log)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer client.Close()

	response, err := client.Call(ctx, c.String("method"), payload, c.Duration("deadline"))
	if err != nil {
		return fmt.Errorf("call: %w", err)
	}
	os.Stdout.Write(response)
	return nil
}
