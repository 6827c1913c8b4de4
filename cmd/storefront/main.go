package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/alecthomas/kong"
	kongtoml "github.com/alecthomas/kong-toml"
	kongcompletion "github.com/jotaen/kong-completion"

	"github.com/block/storefront"
	"github.com/block/storefront/internal/apierror"
	_ "github.com/block/storefront/internal/automaxprocs" // Set GOMAXPROCS to match Linux container CPU quota.
	"github.com/block/storefront/internal/cart"
	"github.com/block/storefront/internal/config"
	"github.com/block/storefront/internal/feedback"
	"github.com/block/storefront/internal/graphql"
	"github.com/block/storefront/internal/log"
	"github.com/block/storefront/internal/observability"
	"github.com/block/storefront/internal/terminal"
)

type CLI struct {
	Version             kong.VersionFlag     `help:"Show version."`
	Config              config.Config        `embed:""`
	LogConfig           log.Config           `embed:"" prefix:"log-" group:"Logging:"`
	ObservabilityConfig observability.Config `embed:"" prefix:"o11y-" group:"Observability:"`
	Cookies             map[string]string    `help:"Cookies to send with every request, eg. the session cookie." mapsep:"," env:"STOREFRONT_COOKIES" placeholder:"NAME=VALUE,…"`
	Yes                 bool                 `help:"Confirm destructive actions without prompting." short:"y"`

	Query      queryCmd                  `cmd:"" help:"Run a raw GraphQL operation."`
	Cart       cartCmd                   `cmd:"" help:"Show and change the cart."`
	Products   productsCmd               `cmd:"" help:"List and manage products."`
	Categories categoriesCmd             `cmd:"" help:"List and manage product categories."`
	Orders     ordersCmd                 `cmd:"" help:"List, update and place orders."`
	Contact    contactCmd                `cmd:"" help:"Send and manage contact messages."`
	Completion kongcompletion.Completion `cmd:"" help:"Outputs shell code for initialising tab completions."`
}

var cli CLI

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app := createKongApplication(&cli)
	kongcompletion.Register(app)
	kctx, err := app.Parse(os.Args[1:])
	app.FatalIfErrorf(err)
	kctx.FatalIfErrorf(cli.Config.Validate())

	term := terminal.NewStdio()
	logger := log.Configure(os.Stderr, cli.LogConfig)
	ctx = log.ContextWithLogger(ctx, logger)
	ctx = terminal.ContextWithTerminal(ctx, term)

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigch
		logger.Debugf("storefront terminating with signal %s", sig)
		cancel()
	}()

	shutdown, err := observability.Init(ctx, "storefront", storefront.Version, cli.ObservabilityConfig)
	kctx.FatalIfErrorf(err, "failed to initialise observability")
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warnf("observability shutdown: %s", err)
		}
	}()

	fb, err := bindContext(ctx, kctx, term)
	kctx.FatalIfErrorf(err)
	defer fb.Close() //nolint:errcheck

	if err := kctx.Run(ctx); err != nil {
		logger.Debugf("%s: %s", apierror.KindOf(err), err)
		kctx.Fatalf("%s", apierror.Localize(cli.Config.Language(), err))
	}
}

func createKongApplication(cli any) *kong.Kong {
	vars := kong.Vars{
		"version": storefront.Version,
		"os":      runtime.GOOS,
		"arch":    runtime.GOARCH,
	}
	for k, v := range config.Vars() {
		vars[k] = v
	}
	return kong.Must(cli,
		kong.Name("storefront"),
		kong.Description("Storefront API client."),
		kong.Configuration(kongtoml.Loader, "~/.config/storefront.toml", ".storefront.toml"),
		kong.ShortUsageOnError(),
		kong.HelpOptions{Compact: true, WrapUpperBound: 80},
		kong.AutoGroup(func(parent kong.Visitable, flag *kong.Flag) *kong.Group {
			node, ok := parent.(*kong.Command)
			if !ok {
				return nil
			}
			return &kong.Group{Key: node.Name, Title: "Command flags:"}
		}),
		vars,
	)
}

func bindContext(ctx context.Context, kctx *kong.Context, term *terminal.Terminal) (*feedback.Channel, error) {
	sess, err := cli.Config.Session()
	if err != nil {
		return nil, err
	}
	for name, value := range cli.Cookies {
		sess.SetCookie(&http.Cookie{Name: name, Value: value})
	}
	client := cli.Config.Client(sess)
	fb := cli.Config.Feedback()
	if cli.Yes {
		feedback.AutoConfirm(ctx, fb, true)
	} else {
		term.ServeConfirmations(ctx, fb)
	}

	kctx.Bind(&cli.Config)
	kctx.Bind(term)
	kctx.Bind(fb)
	kctx.Bind(cart.NewStore(client))
	kctx.BindTo(client, (*graphql.Executor)(nil))
	kctx.BindTo(ctx, (*context.Context)(nil))
	return fb, nil
}
