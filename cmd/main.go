package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/jessevdk/go-flags"

	"github.com/transaction/transbase-go"
	"github.com/transaction/transbase-go/sqlengine"
)

type options struct {
	URL        string `long:"url" env:"TRANSBASE_URL" description:"connection url"`
	User       string `short:"u" long:"user" env:"TRANSBASE_USER" description:"user name"`
	Password   string `short:"p" long:"password" env:"TRANSBASE_PASSWORD" description:"password"`
	Config     string `long:"config" env:"TRANSBASE_CONFIG" description:"yaml or toml file with url, user, password, typecast"`
	Query      string `short:"c" long:"query" description:"run one statement and exit"`
	NoTypeCast bool   `long:"no-typecast" env:"TRANSBASE_NO_TYPECAST" description:"read all values as text"`
	Dbg        bool   `long:"dbg" env:"DEBUG" description:"debug mode"`
}

func main() {
	var opts options
	p := flags.NewParser(&opts, flags.PrintErrors|flags.PassDoubleDash|flags.HelpFlag)
	if _, err := p.Parse(); err != nil {
		os.Exit(1)
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, color.New(color.FgHiRed).Sprintf("error: %v", err))
		os.Exit(1)
	}
	setupLog(opts.Dbg, cfg.Password)

	tb, err := transbase.Connect(cfg, sqlengine.New())
	if err != nil {
		fmt.Fprintln(os.Stderr, color.New(color.FgHiRed).Sprintf("can't connect to %s: %v", cfg.URL, err))
		os.Exit(1)
	}
	defer func() {
		if err := tb.Close(); err != nil {
			lgr.Printf("[WARN] close failed, %v", err)
		}
	}()

	if opts.Query != "" {
		if err := runQuery(tb, opts.Query); err != nil {
			fmt.Fprintln(os.Stderr, color.New(color.FgHiRed).Sprintf("error: %v", err))
			os.Exit(1)
		}
		return
	}

	transbase.RunRepl(tb)
}

// loadConfig reads the config file if set, flags override its values.
func loadConfig(opts options) (transbase.Config, error) {
	cfg := transbase.Config{}
	if opts.Config != "" {
		c, err := transbase.LoadConfig(opts.Config)
		if err != nil {
			return cfg, err
		}
		cfg = c
	}
	if opts.URL != "" {
		cfg.URL = opts.URL
	}
	if opts.User != "" {
		cfg.User = opts.User
	}
	if opts.Password != "" {
		cfg.Password = opts.Password
	}
	if opts.NoTypeCast {
		off := false
		cfg.TypeCast = &off
	}
	return transbase.ParseConfig(map[string]any{
		"url": cfg.URL, "user": cfg.User, "password": cfg.Password, "typecast": cfg.TypeCastEnabled(),
	})
}

func runQuery(tb *transbase.Transbase, query string) error {
	res, err := tb.Query(query)
	if err != nil {
		return err
	}
	if res.ResultSet == nil {
		fmt.Printf("(%d records touched)\n", res.RecordsTouched)
		return nil
	}
	rows, err := res.ResultSet.ToArray()
	if err != nil {
		return err
	}
	for _, row := range rows {
		for i, c := range res.ResultSet.Columns() {
			if i > 0 {
				fmt.Print("\t")
			}
			if v := row[c.Name]; v != nil {
				fmt.Print(v)
			}
		}
		fmt.Println()
	}
	return nil
}

func setupLog(dbg bool, secrets ...string) {
	logOpts := []lgr.Option{lgr.Out(io.Discard), lgr.Err(io.Discard)} // default to discard
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.Msec, lgr.LevelBraces, lgr.CallerFile, lgr.CallerFunc}
	}
	masked := []string{}
	for _, s := range secrets {
		if s != "" {
			masked = append(masked, s)
		}
	}
	if len(masked) > 0 {
		logOpts = append(logOpts, lgr.Secret(masked...)) // mask password in logs
	}

	colorizer := lgr.Mapper{
		ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
		WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
		InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
		DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
		CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
		TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
	}
	logOpts = append(logOpts, lgr.Map(colorizer))

	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
