// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

//go:build linux

// Package main implements the waybar-locshare service.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/wneessen/waybar-locshare/internal/config"
	"github.com/wneessen/waybar-locshare/internal/i18n"
	"github.com/wneessen/waybar-locshare/internal/logger"
	"github.com/wneessen/waybar-locshare/internal/service"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGABRT, os.Interrupt)
	defer cancel()

	confFile := flag.String("config", "", "path to the config file")
	flag.Parse()

	conf, err := config.Load(*confFile)
	if err != nil {
		logger.New(slog.LevelError).Error("failed to load config", logger.Err(err))
		os.Exit(1)
	}
	log := logger.New(conf.LogLevel)

	localizer, err := i18n.New(conf.Locale)
	if err != nil {
		log.Error("failed to initialize localizer", logger.Err(err))
		os.Exit(1)
	}
	serv, err := service.New(conf, log, localizer)
	if err != nil {
		log.Error("failed to initialize waybar-locshare service", logger.Err(err))
		os.Exit(1)
	}

	log.Info("starting waybar-locshare service", slog.String("version", version),
		slog.String("commit", commit), slog.String("date", date))
	if err = serv.Run(ctx); err != nil {
		log.Error("waybar-locshare service failed", logger.Err(err))
		os.Exit(1)
	}
	log.Info("waybar-locshare service stopped")
}
