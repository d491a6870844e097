package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "catalog",
		Usage: "product catalog with optimistic concurrency control",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "http-addr", Usage: "HTTP listen address, overrides HTTP_ADDR"},
			&cli.StringFlag{Name: "grpc-addr", Usage: "gRPC listen address, overrides GRPC_ADDR"},
			&cli.StringFlag{Name: "log-level", Usage: "log level, overrides LOG_LEVEL"},
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP and gRPC servers",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "apply SQL schema migrations and exit",
				Action: migrate,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("catalog stopped")
	}
}
