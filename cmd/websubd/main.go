// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-kit/kit/log/level"
	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/xmidt-org/websub"
	"github.com/xmidt-org/websub/logging"
	"github.com/xmidt-org/websub/xhttp"
	"github.com/xmidt-org/websub/xmetrics"
)

const (
	applicationName = "websubd"

	defaultAddress         = ":8080"
	defaultCallbackPath    = "/callback"
	defaultMaxTransactions = 100
)

func newViper(arguments []string) (*viper.Viper, error) {
	fs := pflag.NewFlagSet(applicationName, pflag.ContinueOnError)
	configFile := fs.StringP("file", "f", "", "the configuration file to use")
	if err := fs.Parse(arguments); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetDefault("address", defaultAddress)
	v.SetDefault("maxTransactions", defaultMaxTransactions)

	if len(*configFile) > 0 {
		v.SetConfigFile(*configFile)
	} else {
		v.SetConfigName(applicationName)
		v.AddConfigPath(".")
		v.AddConfigPath(fmt.Sprintf("/etc/%s", applicationName))
	}

	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if err != nil && (len(*configFile) > 0 || !errors.As(err, &notFound)) {
		return nil, err
	}

	return v, nil
}

func websubd(arguments []string) int {
	v, err := newViper(arguments)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to read configuration: %s\n", err)
		return 1
	}

	loggerOptions, err := logging.FromViper(logging.Sub(v))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to read logging configuration: %s\n", err)
		return 1
	}

	logger := logging.New(loggerOptions)

	registry, err := xmetrics.NewRegistry(nil, websub.Metrics)
	if err != nil {
		logging.Error(logger).Log(logging.MessageKey(), "unable to create metrics registry", logging.ErrorKey(), err)
		return 1
	}

	factory, err := websub.NewFactory(websub.Sub(v))
	if err != nil {
		logging.Error(logger).Log(logging.MessageKey(), "unable to read subscriber configuration", logging.ErrorKey(), err)
		return 1
	}

	subscriber, err := factory.NewSubscriber(logger, registry, func(e *websub.Event) {
		logger.Log(level.Key(), level.InfoValue(), logging.MessageKey(), "subscription event",
			"id", e.ID, "type", e.Type.String(), "hub", e.Hub, "topic", e.Topic,
			"leaseSeconds", e.LeaseSeconds, logging.ErrorKey(), e.Err)
	})

	if err != nil {
		logging.Error(logger).Log(logging.MessageKey(), "unable to create subscriber", logging.ErrorKey(), err)
		return 1
	}

	var (
		router = mux.NewRouter()
		chain  = alice.New(xhttp.Busy(v.GetInt("maxTransactions")))
	)

	router.Handle(defaultCallbackPath, chain.Then(subscriber.Handler())).
		Methods("GET", "POST")
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := xhttp.NewServer(xhttp.ServerOptions{
		Logger:  logger,
		Address: v.GetString("address"),
	})

	server.Handler = router
	starter := xhttp.NewStarter(xhttp.StartOptions{Logger: logger}, server)
	go func() {
		if err := starter(); err != nil {
			logging.Error(logger).Log(logging.MessageKey(), "callback server exited", logging.ErrorKey(), err)
		}
	}()

	subscriber.NotifyListening()

	for _, topic := range v.GetStringSlice("topics") {
		err := subscriber.Subscribe(context.Background(), topic, websub.SubscribeOptions{
			LeaseSeconds: v.GetInt("leaseSeconds"),
		})

		if err != nil {
			logging.Error(logger).Log(logging.MessageKey(), "unable to subscribe", "topic", topic, logging.ErrorKey(), err)
		}
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	s := <-signals
	logger.Log(level.Key(), level.InfoValue(), logging.MessageKey(), "exiting", "signal", s.String())
	return 0
}

func main() {
	os.Exit(websubd(os.Args[1:]))
}
