// copilotgate is a local API gateway that authenticates against an upstream
// provider via the OAuth2 device-authorization grant (or a personal access
// token) and injects a valid bearer token into proxied chat requests.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/shariqriazz/copilotgate/internal/cmd"
	"github.com/shariqriazz/copilotgate/internal/config"
	"github.com/shariqriazz/copilotgate/internal/logging"
	log "github.com/sirupsen/logrus"
)

func main() {
	_ = godotenv.Load()

	var (
		configPath = flag.String("config", "config.yaml", "path to the configuration file")
		doLogin    = flag.Bool("login", false, "run the interactive device-authorization flow and exit")
		doPAT      = flag.Bool("pat", false, "store a personal access token and exit")
		noBrowser  = flag.Bool("no-browser", false, "do not open the browser during login")
	)
	flag.Parse()

	cfg, errLoad := config.Load(*configPath)
	if errLoad != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", errLoad)
		os.Exit(1)
	}
	logging.Setup(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var errRun error
	switch {
	case *doLogin:
		errRun = cmd.Login(ctx, cfg, &cmd.LoginOptions{NoBrowser: *noBrowser})
	case *doPAT:
		errRun = cmd.LoginPAT(ctx, cfg)
	default:
		errRun = cmd.Serve(ctx, cfg)
	}
	if errRun != nil {
		log.Errorf("%v", errRun)
		os.Exit(1)
	}
}
