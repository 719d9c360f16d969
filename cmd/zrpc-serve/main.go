// Command zrpc-serve runs a minimal zRPC server binding one of the
// reference adapters (native QUIC or WebSocket) and serving a single demo
// Echo method, the way cmd/sqlgateway wires a single proxy.Router handler
// behind an urfave/cli app (cmd/sqlgateway/sqlgateway.go) — generalized
// here to the SPI's transport-agnostic Listener/Server instead of one
// hardcoded net/http mux.
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/ghostkellz/zrpc/quicmux"
	"github.com/ghostkellz/zrpc/rpc"
	"github.com/ghostkellz/zrpc/spi"
	"github.com/ghostkellz/zrpc/wsmux"
	"github.com/ghostkellz/zrpc/zlog"
)

func main() {
	app := &cli.App{
		Name:  "zrpc-serve",
		Usage: "Run a zRPC server over the native QUIC or WebSocket adapter",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "scheme",
				Usage: "Adapter to serve: zr, ws, or wss",
				Value: "zr",
			},
			&cli.StringFlag{
				Name:  "listen",
				Usage: "Endpoint to bind, e.g. zr://0.0.0.0:9443",
				Value: "zr://0.0.0.0:9443",
			},
			&cli.StringFlag{
				Name:  "cert",
				Usage: "Path to a PEM certificate (required for zr and wss)",
			},
			&cli.StringFlag{
				Name:  "key",
				Usage: "Path to the PEM private key matching --cert",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn, or error",
				Value: "info",
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

	var tlsCfg *spi.TlsConfig
	if certPath, keyPath := c.String("cert"), c.String("key"); certPath != "" && keyPath != "" {
		cert, err := tls.LoadX509KeyPair(certPath, keyPath)
		if err != nil {
			return fmt.Errorf("loading certificate: %w", err)
		}
		tlsCfg = &spi.TlsConfig{Cert: cert, HasCert: true}
	}

	var transport spi.Transport
	switch c.String("scheme") {
	case "zr":
		transport = &quicmux.Transport{Log: log}
		if tlsCfg == nil {
			return fmt.Errorf("--cert/--key are required for the zr adapter")
		}
	case "ws", "wss":
		transport = &wsmux.Transport{Log: log}
	default:
		return fmt.Errorf("unknown --scheme %q (want zr, ws, or wss)", c.String("scheme"))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ln, err := transport.Listen(ctx, c.String("listen"), tlsCfg)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer ln.Close()

	server := rpc.NewServer(log)
	server.Register("zrpc.Echo/Say", rpc.HandlerFunc(echoHandler))

	log.Info().Str("addr", ln.Addr()).Str("scheme", c.String("scheme")).Msg("zrpc-serve: listening")
	return server.Serve(ctx, ln)
}

func echoHandler(ctx context.Context, call *rpc.ServerCall) error {
	payload, _, err := call.Recv(ctx)
	if err != nil {
		return err
	}
	return call.Send(ctx, payload)
}
