// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/mstarongithub/cwc/comp"
	"github.com/mstarongithub/cwc/config"
)

const (
	versionMajor = 1
	versionMinor = 0
	versionPatch = 0
)

var (
	configPath = flag.String("config", "", "Path to the config file. Default is $XDG_CONFIG_HOME/cwc/config.toml")
	socketName = flag.String("socket", "", "Override the socket name from the config")
	logFile    = flag.String("log-file", "", "Log to a file instead of stderr")
	debugMode  = flag.Bool("debug", false, "Enable debug logging")
	quietMode  = flag.Bool("quiet", false, "Only log errors")
	version    = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("cwc v%d.%d.%d\n", versionMajor, versionMinor, versionPatch)
		return
	}

	setupLogging()

	conf, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatalln("loading config")
	}
	if *socketName != "" {
		conf.SocketName = *socketName
	}
	if !*debugMode && os.Getenv("CWC_DEBUG") != "" {
		logrus.SetLevel(logrus.DebugLevel)
	}

	server, err := comp.New(conf, prometheus.DefaultRegisterer)
	if err != nil {
		logrus.WithError(err).Fatalln("initializing server")
	}

	logrus.WithField("socket", conf.SocketName).Infoln("cwc core running, waiting for a transport. Try 'help' on the repl")

	replDone := make(chan struct{})
	go func() {
		replRunner(server)
		close(replDone)
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	signal.Ignore(syscall.SIGPIPE)

	select {
	case sig := <-signals:
		logrus.WithField("signal", sig).Infoln("Shutting down")
	case <-replDone:
		logrus.Infoln("Repl closed, shutting down")
	}
	server.Shutdown()
}

func setupLogging() {
	switch {
	case *debugMode:
		logrus.SetLevel(logrus.DebugLevel)
	case *quietMode:
		logrus.SetLevel(logrus.ErrorLevel)
	}
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %s\n", *logFile, err)
			return
		}
		logrus.SetOutput(f)
	}
}
