// doit is a line-oriented client for the goal tracking backend: sign in with
// a phone number, keep a list of goals and talk to the goal assistant.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"doit/internal/app"
	"doit/internal/config"
	"doit/internal/util"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	flagSet := pflag.NewFlagSet("doit", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to config file (default: "+config.ConfigPath+")")
	flagSet.BoolP("help", "h", false, "show help")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		fmt.Fprintln(os.Stderr, "usage: doit [--config path]")
		flagSet.PrintDefaults()
		return nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, logCloser, err := util.InitLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logCloser.Close()

	timeout, err := config.ParseDuration("requestTimeout", cfg.RequestTimeout)
	if err != nil {
		return err
	}
	replyDelay, err := config.ParseDuration("chatReplyDelay", cfg.ChatReplyDelay)
	if err != nil {
		return err
	}

	signInWindow, err := config.ParseDuration("signInWindow", cfg.SignInWindow)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = util.ContextWithLogger(ctx, logger)

	core, err := app.New(ctx, app.Config{
		BaseURL:        cfg.BaseURL,
		RequestTimeout: timeout,
		KV:             cfg.KVConfig(),
		ChatReplyDelay: replyDelay,
		OTPCode:        cfg.OTPCode,
		SignInLimit:    cfg.SignInLimit,
		SignInWindow:   signInWindow,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer core.Close()

	logger.Info("client started", "base_url", cfg.BaseURL, "kv_backend", cfg.KVBackend)
	return newShell(core, os.Stdout).Run(ctx, os.Stdin)
}
