package app

import (
	"strings"
	"time"

	"remindbot/internal/bot"
	"remindbot/internal/config"
	"remindbot/internal/storage"
	telegram "remindbot/internal/transport/telegram/adapter"
	logx "remindbot/pkg/logx"
)

const defaultBusyTimeout = 5 * time.Second

func mapLogConfig(cfg *config.Config, verbose bool) logx.Config {
	lc := logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
	if verbose {
		lc.Level = "debug"
	}
	return lc
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, defaultBusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(sc.Driver)),
		Path:        strings.TrimSpace(sc.Path),
		BusyTimeout: busy,
		Addr:        strings.TrimSpace(sc.Addr),
		Password:    sc.Password,
		DB:          sc.DB,
		Key:         strings.TrimSpace(sc.Key),
	}, nil
}

func mapTelegramConfig(cfg *config.Config) (telegram.Config, error) {
	req, err := cfg.RequestTimeout()
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{
		Token:          cfg.Telegram.Token,
		URL:            cfg.Telegram.APIURL,
		RequestTimeout: req,
		RatePerSec:     cfg.Telegram.RatePerSec,
	}, nil
}

func mapLoopConfig(cfg *config.Config) (bot.Config, error) {
	poll, err := cfg.PollTimeout()
	if err != nil {
		return bot.Config{}, err
	}
	catchUp, err := cfg.CatchUp()
	if err != nil {
		return bot.Config{}, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return bot.Config{}, err
	}
	return bot.Config{
		PollTimeout: poll,
		CatchUp:     catchUp,
		Location:    loc,
	}, nil
}
